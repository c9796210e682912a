//go:build avpipe

package decode

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"playhead/internal/media"
	"playhead/internal/queue"
)

// Decoder drives one avcodec context for one demuxed stream. Packets are
// pushed non-blockingly onto a bounded input queue; a worker goroutine
// feeds the codec and pushes decoded frames onto a small output queue
// that the filter graph pulls from.
type Decoder struct {
	desc media.StreamDescriptor

	codecMu sync.Mutex // guards codecCtx; distinct from either queue's lock
	codecCtx *astiav.CodecContext

	in  *queue.Queue[*media.Packet]
	out *queue.Queue[*media.Frame]

	closing chan struct{}
	wg      sync.WaitGroup
}

// Open allocates and opens a codec context for desc, seeding it with
// extraData (AVCDecoderConfigurationRecord / AudioSpecificConfig / etc.)
// when the source did not carry it in-band.
func Open(desc media.StreamDescriptor, extraData []byte) (*Decoder, error) {
	codec := astiav.FindDecoderByName(desc.CodecID)
	if codec == nil {
		return nil, fmt.Errorf("decode: no decoder for codec %q", desc.CodecID)
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("decode: alloc codec context")
	}
	if len(extraData) > 0 {
		ctx.SetExtraData(extraData)
	}
	if desc.Kind == media.KindVideo {
		ctx.SetWidth(desc.Width)
		ctx.SetHeight(desc.Height)
	} else if desc.Kind == media.KindAudio {
		ctx.SetSampleRate(desc.SampleRate)
	}
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("decode: open codec: %w", err)
	}

	d := &Decoder{
		desc:     desc,
		codecCtx: ctx,
		in:       queue.New[*media.Packet](DefaultInputQueueCapacity, (*media.Packet).IsEOS),
		out:      queue.New[*media.Frame](DefaultOutputQueueCapacity, func(f *media.Frame) bool { return f == nil }),
		closing:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// TryPush attempts a non-blocking push of pkt onto the input queue.
// Callers back off and retry later when it returns false.
func (d *Decoder) TryPush(pkt *media.Packet) bool {
	return d.in.TryPush(pkt)
}

// Poll performs a non-blocking pull from the output queue.
func (d *Decoder) Poll() PullResult {
	f, ok := d.out.TryPop()
	if !ok {
		return PullResult{Status: ResultAgain}
	}
	if f == nil {
		return PullResult{Status: ResultEOF}
	}
	return PullResult{Status: ResultOk, Frame: f}
}

// Flush drops buffered input/output and resets the codec's internal
// state, used on seek so no pre-seek frames leak past the flush point.
func (d *Decoder) Flush() {
	d.in.Clear(func(p *media.Packet) { p.Release() })
	d.out.Clear(func(f *media.Frame) {
		if f != nil {
			f.Release()
		}
	})
	d.codecMu.Lock()
	d.codecCtx.FlushBuffers()
	d.codecMu.Unlock()
}

// Close stops the worker and frees the codec context.
func (d *Decoder) Close() error {
	close(d.closing)
	d.in.Abort()
	d.wg.Wait()
	d.codecCtx.Free()
	return nil
}

func (d *Decoder) worker() {
	defer d.wg.Done()

	frame := astiav.AllocFrame()
	defer frame.Free()
	pkt := astiav.AllocPacket()
	defer pkt.Free()

	for {
		p, ok := d.in.Pop()
		if !ok {
			return
		}

		if p.IsEOS() {
			d.sendAndDrain(nil, frame)
			d.out.Push(nil)
			p.Release()
			continue
		}

		pkt.SetData(p.Data)
		pkt.SetPts(media.RescaleQ(p.PTS, media.TimeBaseQ, d.desc.TimeBase))
		pkt.SetDts(media.RescaleQ(p.DTS, media.TimeBaseQ, d.desc.TimeBase))
		pkt.SetDuration(media.RescaleQ(p.Duration, media.TimeBaseQ, d.desc.TimeBase))
		d.sendAndDrain(pkt, frame)
		pkt.Unref()
		p.Release()
	}
}

// sendAndDrain sends pkt (nil for flush) to the codec and repeatedly
// receives frames until EAGAIN/EOF, taking each frame's PTS from
// best_effort_timestamp, or from the frame's own pts when that is absent.
// Frame Duration is not derived here and stays zero.
func (d *Decoder) sendAndDrain(pkt *astiav.Packet, frame *astiav.Frame) {
	d.codecMu.Lock()
	defer d.codecMu.Unlock()

	if err := d.codecCtx.SendPacket(pkt); err != nil && err != astiav.ErrEagain && err != astiav.ErrEof {
		return
	}

	for {
		if err := d.codecCtx.ReceiveFrame(frame); err != nil {
			frame.Unref()
			return
		}

		pts := frame.BestEffortTimestamp()
		if pts == astiav.NoPtsValue {
			pts = frame.Pts()
		}

		mf := &media.Frame{
			Kind:     d.desc.Kind,
			TimeBase: d.desc.TimeBase,
			PTS:      media.RescaleQ(int64(pts), d.desc.TimeBase, media.TimeBaseQ),
		}
		if d.desc.Kind == media.KindVideo {
			mf.PixelFormat = frame.PixelFormat().String()
			mf.Width = frame.Width()
			mf.Height = frame.Height()
			for i := 0; i < 8 && i < len(frame.Linesize()); i++ {
				mf.LineSize[i] = frame.Linesize()[i]
			}
			for i, plane := range frame.Data() {
				if i >= 8 {
					break
				}
				mf.Data[i] = append([]byte(nil), plane...)
			}
		} else {
			mf.SampleFormat = d.desc.SampleFormat
			mf.SampleRate = frame.SampleRate()
			mf.Channels = frame.ChannelLayout().Channels()
			mf.NumSamples = frame.NumSamples()
			for i, plane := range frame.Data() {
				if i >= 8 {
					break
				}
				mf.AudioData[i] = append([]byte(nil), plane...)
			}
		}

		d.out.Push(mf)
		frame.Unref()
	}
}
