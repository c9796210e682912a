//go:build avpipe

package demux

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"playhead/internal/media"
	"playhead/internal/netio"
	"playhead/internal/netio/rtmpsrc"
	"playhead/internal/queue"
)

// Demuxer opens a container via libavformat and runs a background worker
// that pushes packets, in container order, onto a single output queue.
// Callers drain the queue and dispatch each packet to the decoder for its
// StreamIndex; EOSStreamIndex packets must be fanned out to every decoder.
type Demuxer struct {
	fmtCtx  *astiav.FormatContext
	streams []media.StreamDescriptor

	recon *netio.Reconnector

	// src is set instead of fmtCtx for an rtmp:// input, which this
	// module speaks natively rather than through libavformat's own RTMP
	// protocol handler.
	src *rtmpsrc.Source

	out *queue.Queue[*media.Packet]

	mu      sync.Mutex // serializes Seek against the worker's ReadFrame loop
	paused  atomic.Bool
	eof     atomic.Bool
	closing atomic.Bool

	// wake lets Seek resume readLoop once it has parked waiting for a
	// post-EOF seek; closeCh unblocks that same wait on Close so
	// readLoop never has to return for good just because the container
	// ran out of packets once.
	wake    chan struct{}
	closeCh chan struct{}

	closer *astikit.Closer
	wg     sync.WaitGroup
}

// isRTMP reports whether url should be handled by the native rtmpsrc
// client instead of libavformat's own RTMP protocol handler.
func isRTMP(url string) bool {
	return strings.HasPrefix(url, "rtmp://") || strings.HasPrefix(url, "rtmps://")
}

// Open opens opts.URL, probes its streams, and starts the background read
// worker. rtmp(s):// URLs are dialed through the native rtmpsrc client;
// other network URLs (containing "://") are dialed through a Reconnector
// registered for the URL's scheme, with reconnect and a read/write timeout
// per opts.
func Open(opts Options) (*Demuxer, error) {
	opts.setDefaults()

	if isRTMP(opts.URL) {
		return openRTMP(opts)
	}

	closer := astikit.NewCloser()

	fmtCtx := astiav.AllocFormatContext()
	if fmtCtx == nil {
		closer.Close()
		return nil, fmt.Errorf("%w: alloc format context", ErrOpenFailed)
	}
	closer.Add(fmtCtx.Free)

	d := &Demuxer{
		fmtCtx:  fmtCtx,
		closer:  closer,
		out:     queue.New[*media.Packet](opts.QueueCapacity, (*media.Packet).IsEOS),
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}

	var ioCtx *astiav.IOContext
	if IsNetwork(opts.URL) {
		recon, err := netio.NewReconnector(opts.URL, opts.ReadWriteTimeout, opts.Reconnect)
		if err == nil {
			d.recon = recon
			closer.Add(func() error { recon.Abort(); return nil })
			ioCtx = astiav.AllocIOContext(4096, false, recon.Read, nil, recon.Write)
			closer.Add(ioCtx.Free)
			fmtCtx.SetPb(ioCtx)
			fmtCtx.SetInterruptCallback(recon.InterruptCallback)
		}
	}

	if err := fmtCtx.OpenInput(opts.URL, nil, nil); err != nil {
		closer.Close()
		return nil, fmt.Errorf("%w: open input %q: %v", ErrOpenFailed, opts.URL, err)
	}
	closer.Add(fmtCtx.CloseInput)

	if err := fmtCtx.FindStreamInfo(nil); err != nil {
		closer.Close()
		return nil, fmt.Errorf("%w: find stream info: %v", ErrOpenFailed, err)
	}

	for _, st := range fmtCtx.Streams() {
		d.streams = append(d.streams, describeStream(st))
	}

	d.wg.Add(1)
	go d.readLoop()

	return d, nil
}

// openRTMP dials rawURL via the native RTMP client, waits for at least one
// codec's sequence header so Streams() has an inventory to report, and
// starts a background worker feeding the same output queue readLoop uses
// for the libavformat path.
func openRTMP(opts Options) (*Demuxer, error) {
	src, err := rtmpsrc.Dial(opts.URL, opts.ReadWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: rtmp dial %q: %v", ErrOpenFailed, opts.URL, err)
	}
	if err := src.WaitForStreams(opts.ReadWriteTimeout); err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: rtmp %q: %v", ErrOpenFailed, opts.URL, err)
	}

	closer := astikit.NewCloser()
	closer.Add(func() error { return src.Close() })

	d := &Demuxer{
		src:     src,
		streams: src.Streams(),
		closer:  closer,
		out:     queue.New[*media.Packet](opts.QueueCapacity, (*media.Packet).IsEOS),
		closeCh: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.readLoopRTMP()

	return d, nil
}

// readLoopRTMP mirrors readLoop for the native RTMP path: it has no pause
// support at the transport level (there's nothing to stop reading from a
// live push feed without dropping the connection), so a Pause()'d
// Demuxer keeps reading off the wire but stops pushing onto the output
// queue. The astiav worker (readLoop) differs: it stops calling ReadFrame
// altogether while paused.
func (d *Demuxer) readLoopRTMP() {
	defer d.wg.Done()
	for !d.closing.Load() {
		pkt, err := d.src.ReadPacket()
		if err != nil {
			d.eof.Store(true)
			d.out.Push(GlobalEOS())
			return
		}
		if d.paused.Load() {
			pkt.Release()
			continue
		}
		if !d.out.Push(pkt) {
			pkt.Release()
			return
		}
	}
}

func describeStream(st *astiav.Stream) media.StreamDescriptor {
	par := st.CodecParameters()
	tb := media.Rational{Num: st.TimeBase().Num(), Den: st.TimeBase().Den()}
	desc := media.StreamDescriptor{
		Index:     st.Index(),
		TimeBase:  tb,
		StartTime: int64(st.StartTime()),
		Duration:  int64(st.Duration()),
		CodecID:   par.CodecID().String(),
		ExtraData: append([]byte(nil), par.ExtraData()...),
	}
	switch par.MediaType() {
	case astiav.MediaTypeVideo:
		desc.Kind = media.KindVideo
		desc.Width = par.Width()
		desc.Height = par.Height()
		desc.PixelFormat = par.PixelFormat().String()
		fr := st.AvgFrameRate()
		desc.FrameRate = media.Rational{Num: fr.Num(), Den: fr.Den()}
		sar := par.SampleAspectRatio()
		desc.SampleAspect = media.Rational{Num: sar.Num(), Den: sar.Den()}
	case astiav.MediaTypeAudio:
		desc.Kind = media.KindAudio
		desc.SampleRate = par.SampleRate()
		desc.SampleFormat = par.SampleFormat().Name()
		desc.Channels = par.ChannelLayout().Channels()
	default:
		desc.Kind = media.KindUnknown
	}
	return desc
}

// Streams returns the probed stream inventory in container order.
func (d *Demuxer) Streams() []media.StreamDescriptor { return d.streams }

// Pause stops the worker from issuing further ReadFrame calls once its
// current call returns; buffered packets remain available to drain.
func (d *Demuxer) Pause() { d.paused.Store(true) }

// Resume lets the worker continue reading frames.
func (d *Demuxer) Resume() { d.paused.Store(false) }

// EOF reports whether the container has been fully read.
func (d *Demuxer) EOF() bool { return d.eof.Load() }

// Paused reports whether the worker is currently paused.
func (d *Demuxer) Paused() bool { return d.paused.Load() }

// Seek repositions the demuxer to ts (in AV_TIME_BASE units). When flush is
// true the output queue is cleared first so no stale packets from before
// the seek reach a decoder.
func (d *Demuxer) Seek(ts int64, flush bool) error {
	if d.src != nil {
		return fmt.Errorf("demux: seek: live rtmp input cannot seek")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if flush {
		d.out.Clear(func(p *media.Packet) { p.Release() })
	}
	if err := d.fmtCtx.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("demux: seek: %w", err)
	}
	d.eof.Store(false)
	// Non-blocking: if readLoop is parked waiting out a prior EOF, this
	// wakes it; if it's still mid-stream, the buffered signal is a no-op
	// until the next EOF, at which point it skips the wait once instead
	// of parking on a seek that already happened.
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Drain pops queued packets one at a time, calling sink for each until
// sink returns false or the queue is empty.
func (d *Demuxer) Drain(sink func(*media.Packet) bool) {
	d.out.Drain(sink)
}

// Close stops the worker and releases the format context and any
// network transport, in reverse order of acquisition.
func (d *Demuxer) Close() error {
	d.closing.Store(true)
	if d.closeCh != nil {
		close(d.closeCh)
	}
	d.out.Abort()
	d.wg.Wait()
	return d.closer.Close()
}

// readLoop survives reaching EOF: a loop-back or a post-EOF seek command
// both expect more packets out of the same worker rather than a dead one,
// the way decode.Decoder.worker keeps running past an EOS packet instead
// of returning. It only exits for good on Close.
func (d *Demuxer) readLoop() {
	defer d.wg.Done()
	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for !d.closing.Load() {
		if d.paused.Load() {
			continue
		}

		d.mu.Lock()
		err := d.fmtCtx.ReadFrame(pkt)
		d.mu.Unlock()

		if err != nil {
			if errors_isEOF(err) {
				d.eof.Store(true)
				d.out.Push(GlobalEOS())
				select {
				case <-d.wake:
					continue
				case <-d.closeCh:
					return
				}
			}
			continue
		}

		streamIdx := pkt.StreamIndex()
		st := d.fmtCtx.Streams()[streamIdx]
		tb := media.Rational{Num: st.TimeBase().Num(), Den: st.TimeBase().Den()}
		pts := media.RescaleQ(pkt.Pts(), tb, media.TimeBaseQ)
		dts := media.RescaleQ(pkt.Dts(), tb, media.TimeBaseQ)
		dur := media.RescaleQ(pkt.Duration(), tb, media.TimeBaseQ)

		data := append([]byte(nil), pkt.Data()...)
		mp := media.NewPacket(streamIdx, pts, dts, dur, data, pkt.Flags().Has(astiav.PacketFlagKey), nil)
		pkt.Unref()

		if !d.out.Push(mp) {
			mp.Release()
			return
		}
	}
}

// errors_isEOF reports whether err is astiav's translation of AVERROR_EOF.
func errors_isEOF(err error) bool {
	return err == astiav.ErrEof
}
