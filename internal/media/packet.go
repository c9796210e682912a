package media

import "sync"

// Packet is a compressed media unit read from the demuxer. It is owned by
// the demuxer until pushed to a decoder's input queue, then owned by that
// queue until the decoder consumes it. A nil Data with IsEOS true is the
// end-of-stream marker a decoder must flush on.
type Packet struct {
	StreamIndex int
	PTS         int64 // NoPTS if absent
	DTS         int64
	Duration    int64
	Data        []byte
	KeyFrame    bool

	release     func()
	releaseOnce sync.Once
}

// NewPacket wraps a payload with an optional native-resource release
// callback. release may be nil for packets that own no native memory
// (e.g. those built in tests).
func NewPacket(streamIndex int, pts, dts, duration int64, data []byte, keyFrame bool, release func()) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		PTS:         pts,
		DTS:         dts,
		Duration:    duration,
		Data:        data,
		KeyFrame:    keyFrame,
		release:     release,
	}
}

// EOSPacket returns the null-packet end-of-stream marker for streamIndex.
func EOSPacket(streamIndex int) *Packet {
	return &Packet{StreamIndex: streamIndex, PTS: NoPTS, DTS: NoPTS}
}

// IsEOS reports whether this packet is the end-of-stream marker.
func (p *Packet) IsEOS() bool {
	return p == nil || p.Data == nil
}

// Release frees native resources exactly once. Safe to call on a nil
// packet or an EOS marker.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	p.releaseOnce.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}
