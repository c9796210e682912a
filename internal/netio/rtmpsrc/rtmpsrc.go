// Package rtmpsrc is a native Go RTMP client used as the demuxer's network
// input path for rtmp:// URLs, in place of the media library's built-in
// RTMP protocol handler. It performs the handshake, connect/createStream/
// play command exchange, and turns the resulting audio/video messages
// directly into media.Packet without an intermediate FLV file layer.
//
// Adapted from the RTMP relay pull-task's connect loop: same handshake,
// but completed end-to-end (connect/createStream/play) instead of stopping
// at the handshake, and rescaling every timestamp into the pipeline's
// shared TimeBaseQ instead of leaving it in raw RTMP milliseconds. The
// package has no reconnect logic of its own.
package rtmpsrc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"playhead/internal/media"
	"playhead/internal/netio/rtmpsrc/amf0"
	"playhead/internal/netio/rtmpsrc/rtmpproto"
)

const (
	streamIndexVideo = 0
	streamIndexAudio = 1
)

// rtmpTimeBase is the time base RTMP timestamps arrive in: always
// milliseconds, regardless of what the underlying codec's own time base
// would be.
var rtmpTimeBase = media.Rational{Num: 1, Den: 1000}

// Source is a connected, playing RTMP session ready to yield packets.
type Source struct {
	conn    *countingConn
	sess    *rtmpproto.Session
	timeout time.Duration
	app     string

	haveVideo, haveAudio bool
	videoCodec           byte
	audioCodec           byte
	videoExtra           []byte
	audioExtra           []byte

	// pending holds packets read while WaitForStreams was still waiting
	// on a sequence header, so ReadPacket doesn't lose them once called.
	pending []*media.Packet
}

// Dial connects to rawURL, performs the handshake, and issues
// connect/createStream/play, returning a Source ready for WaitForStreams
// then ReadPacket.
func Dial(rawURL string, timeout time.Duration) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rtmpsrc: parse url: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		host += ":1935"
	}

	raw, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		return nil, fmt.Errorf("rtmpsrc: dial %s: %w", host, err)
	}
	conn := &countingConn{Conn: raw}

	if err := rtmpproto.PerformClientHandshake(conn, timeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: handshake: %w", err)
	}

	sess := rtmpproto.NewSession(conn)
	sess.SetState(rtmpproto.StateConnected)
	// Acknowledge every 2500000 bytes received until the server announces
	// its own window in a Window Acknowledgement Size message, which
	// readMessage applies in place of this one.
	sess.SetAckSize(2500000)

	app, streamName := splitAppAndStream(u.Path)
	sess.SetApp(app)
	sess.SetStreamName(streamName)

	s := &Source{conn: conn, sess: sess, timeout: timeout, app: app}

	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if err := s.sendCommand(3, "connect", 1, amf0.Object{
		"app":      app,
		"tcUrl":    rawURL,
		"flashVer": "playhead/1.0",
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: send connect: %w", err)
	}
	if err := s.awaitResult("_result"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: connect result: %w", err)
	}

	if err := s.sendCommand(3, "createStream", 2, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: send createStream: %w", err)
	}
	if err := s.awaitResult("_result"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: createStream result: %w", err)
	}

	if err := s.sendCommand(8, "play", 0, nil, streamName); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmpsrc: send play: %w", err)
	}

	return s, nil
}

func splitAppAndStream(path string) (app, stream string) {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return "", ""
}

// sendCommand writes a bare sequence of AMF0 values (command name,
// transaction ID, then any extra args) as a single RTMP command message.
// Unlike amf0.EncodeCommand (which wraps values in a strict-array marker,
// a mismatch with the real wire format), this writes each value
// back-to-back, matching what an RTMP server actually expects.
func (s *Source) sendCommand(chunkStreamID uint32, name string, transactionID float64, obj amf0.Object, extra ...string) error {
	var buf bytes.Buffer
	if err := amf0.Encode(&buf, name); err != nil {
		return err
	}
	if err := amf0.Encode(&buf, transactionID); err != nil {
		return err
	}
	if obj != nil {
		if err := amf0.Encode(&buf, obj); err != nil {
			return err
		}
	} else {
		if err := amf0.Encode(&buf, nil); err != nil {
			return err
		}
	}
	for _, e := range extra {
		if err := amf0.Encode(&buf, e); err != nil {
			return err
		}
	}
	return s.sess.WriteMessage(chunkStreamID, rtmpproto.MessageTypeCommandAMF0, 0, 0, buf.Bytes())
}

// awaitResult reads messages until it sees a command message named want or
// "_error", decoding the full command (including its info object) to tell
// the two apart by status code rather than by name alone: a server can
// reply "_result" to createStream yet still send an onStatus "_error" for
// the play that follows on the same connection.
func (s *Source) awaitResult(want string) error {
	deadline := time.Now().Add(s.timeout)
	for time.Now().Before(deadline) {
		msgType, body, _, err := s.readMessage()
		if err != nil {
			return err
		}
		if msgType != rtmpproto.MessageTypeCommandAMF0 {
			continue
		}
		cmd, err := amf0.DecodeCommand(bytes.NewReader(body))
		if err != nil || len(cmd) == 0 {
			continue
		}
		name, _ := cmd[0].(string)
		switch name {
		case want:
			if code, ok := amf0.StatusCode(cmd); ok && strings.Contains(code, "Rejected") {
				return fmt.Errorf("rtmpsrc: %s: %s", want, code)
			}
			return nil
		case "_error", "onStatus":
			if code, ok := amf0.StatusCode(cmd); ok {
				if strings.Contains(code, "Error") || strings.Contains(code, "Rejected") || strings.Contains(code, "Failed") {
					return fmt.Errorf("rtmpsrc: %s: %s", s.app, code)
				}
			}
		}
	}
	return fmt.Errorf("rtmpsrc: timed out waiting for %q", want)
}

// readMessage reads one complete RTMP message, transparently handling the
// inbound control messages (Set Chunk Size, Window Ack Size) a compliant
// client has to react to rather than surface as payload, and feeding the
// session's ACK bookkeeping from bytes consumed off the wire.
func (s *Source) readMessage() (msgType byte, body []byte, timestamp int64, err error) {
	for {
		if s.sess.GetState() == rtmpproto.StateClosed {
			return 0, nil, 0, fmt.Errorf("rtmpsrc: session closed")
		}

		before := s.conn.bytesRead
		csID, err := s.sess.ReadChunk()
		if err != nil {
			return 0, nil, 0, err
		}
		if acked, ackErr := s.sess.RecordBytesReceived(uint32(s.conn.bytesRead - before)); ackErr != nil {
			return 0, nil, 0, ackErr
		} else {
			_ = acked
		}

		body, msgType, timestamp, complete := s.sess.GetCompleteMessage(csID)
		if !complete {
			continue
		}

		switch msgType {
		case rtmpproto.MessageTypeSetChunkSize:
			size, err := rtmpproto.ParseSetChunkSize(body)
			if err != nil {
				return 0, nil, 0, fmt.Errorf("rtmpsrc: %s: %w", s.app, err)
			}
			s.sess.SetChunkSize(size)
			continue
		case rtmpproto.MessageTypeWinAckSize:
			if len(body) >= 4 {
				s.sess.SetAckSize(binary.BigEndian.Uint32(body))
			}
			continue
		default:
			return msgType, body, timestamp, nil
		}
	}
}

// WaitForStreams blocks until at least one codec's sequence header has
// arrived (so Streams() has something to report), or timeout elapses.
// Packets read while waiting are held in s.pending for ReadPacket.
func (s *Source) WaitForStreams(timeout time.Duration) error {
	s.conn.SetDeadline(time.Now().Add(timeout))
	defer s.conn.SetDeadline(time.Time{})

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.haveVideo || s.haveAudio {
			return nil
		}
		pkt, err := s.readOnePacket()
		if err != nil {
			return err
		}
		if pkt != nil {
			s.pending = append(s.pending, pkt)
		}
	}
	return fmt.Errorf("rtmpsrc: %s: timed out waiting for stream headers", s.app)
}

// ReadPacket blocks until the next audio or video message arrives and
// returns it as a Packet. AVC/AAC sequence headers are consumed to learn
// stream inventory and never surfaced as a Packet.
func (s *Source) ReadPacket() (*media.Packet, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}
	for {
		pkt, err := s.readOnePacket()
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
	}
}

func (s *Source) readOnePacket() (*media.Packet, error) {
	msgType, body, timestamp, err := s.readMessage()
	if err != nil {
		return nil, err
	}
	switch msgType {
	case rtmpproto.MessageTypeVideo:
		return s.parseVideo(body, timestamp)
	case rtmpproto.MessageTypeAudio:
		return s.parseAudio(body, timestamp)
	default:
		return nil, nil
	}
}

// parseVideo turns an FLV-style video tag into a Packet, consuming AVC/
// HEVC sequence headers into videoExtra instead of surfacing them.
func (s *Source) parseVideo(body []byte, timestamp int64) (*media.Packet, error) {
	tag, err := rtmpproto.ParseVideoTag(body)
	if err != nil {
		return nil, nil //nolint:nilerr // a malformed tag is dropped, not fatal to the session
	}
	if tag.CodecID != rtmpproto.CodecIDAVC && tag.CodecID != rtmpproto.CodecIDHEVC {
		return nil, nil
	}
	if tag.IsSequence {
		s.videoExtra = append([]byte(nil), tag.Payload...)
		s.videoCodec = tag.CodecID
		s.haveVideo = true
		return nil, nil
	}
	pts := media.RescaleQ(timestamp, rtmpTimeBase, media.TimeBaseQ)
	cts := media.RescaleQ(int64(tag.Composition), rtmpTimeBase, media.TimeBaseQ)
	return media.NewPacket(streamIndexVideo, pts+cts, pts, 0, append([]byte(nil), tag.Payload...), tag.FrameType == 1, nil), nil
}

func (s *Source) parseAudio(body []byte, timestamp int64) (*media.Packet, error) {
	tag, err := rtmpproto.ParseAudioTag(body)
	if err != nil {
		return nil, nil //nolint:nilerr // a malformed tag is dropped, not fatal to the session
	}
	pts := media.RescaleQ(timestamp, rtmpTimeBase, media.TimeBaseQ)
	if tag.SoundFormat != rtmpproto.CodecIDAAC {
		return media.NewPacket(streamIndexAudio, pts, pts, 0, append([]byte(nil), tag.Payload...), true, nil), nil
	}
	if tag.IsSequence {
		s.audioExtra = append([]byte(nil), tag.Payload...)
		s.audioCodec = tag.SoundFormat
		s.haveAudio = true
		return nil, nil
	}
	return media.NewPacket(streamIndexAudio, pts, pts, 0, append([]byte(nil), tag.Payload...), true, nil), nil
}

// Streams returns the stream inventory learned so far from sequence
// headers. Empty until the corresponding codec's sequence header arrives.
func (s *Source) Streams() []media.StreamDescriptor {
	var out []media.StreamDescriptor
	if s.haveVideo {
		out = append(out, media.StreamDescriptor{
			Index: streamIndexVideo, Kind: media.KindVideo,
			CodecID: rtmpproto.VideoCodecName(s.videoCodec), TimeBase: rtmpTimeBase,
			StartTime: media.NoPTS, Duration: media.NoPTS, ExtraData: s.videoExtra,
		})
	}
	if s.haveAudio {
		out = append(out, media.StreamDescriptor{
			Index: streamIndexAudio, Kind: media.KindAudio,
			CodecID: rtmpproto.AudioCodecName(s.audioCodec), TimeBase: rtmpTimeBase,
			StartTime: media.NoPTS, Duration: media.NoPTS, ExtraData: s.audioExtra,
		})
	}
	return out
}

// Close terminates the underlying connection.
func (s *Source) Close() error {
	s.sess.Close()
	return nil
}

// countingConn wraps a net.Conn to track cumulative bytes read, the input
// Session.RecordBytesReceived needs to decide when a Window Acknowledgement
// is due.
type countingConn struct {
	net.Conn
	bytesRead int64
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.bytesRead += int64(n)
	return n, err
}
