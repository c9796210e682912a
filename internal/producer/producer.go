// Package producer implements the orchestrator that ties a demuxer, one
// decoder per stream, and the video/audio filter graphs together into a
// single time-aligned stream of OutputFrames for a downstream compositor.
package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"playhead/internal/decode"
	"playhead/internal/demux"
	"playhead/internal/diag"
	"playhead/internal/filter"
	"playhead/internal/media"
	"playhead/internal/queue"
)

// ErrClosed is returned by every operation once the Producer has been
// closed.
var ErrClosed = errors.New("producer: closed")

// State is the orchestrator's coarse playback state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateSeeking
	StateTerminating
)

// Options configures a Producer.
type Options struct {
	URL              string
	Loop             bool
	In, Out          int64 // frame-index bounds, Out<0 means end of stream
	Video            filter.VideoSpec
	Audio            filter.AudioSpec
	QueueCapacity    int
	ReadWriteTimeout time.Duration
	Reconnect        bool
	Registerer       prometheus.Registerer // nil disables metrics
}

func (o *Options) setDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 50 // roughly one second at 50fps
	}
}

// Producer pulls packets from a Demuxer, decodes them per-stream, filters
// video and audio into a common target format, and buffers the resulting
// OutputFrames so a caller can pull frame-accurate output on demand.
type Producer struct {
	opts Options

	demuxer *demux.Demuxer

	decodersMu sync.Mutex
	decoders   map[int]*decode.Decoder
	streams    map[int]media.StreamDescriptor

	videoGraph *filter.VideoGraph
	audioGraph *filter.AudioGraph

	// inFrame/outFrame hold the live IN/OUT bounds: a copy of opts.In/
	// opts.Out at Open, updated in place by SetIn/SetOut so an AMCP-style
	// IN/OUT/LENGTH command takes effect against the already-running
	// pipeline instead of only the Options struct it was opened with.
	inFrame  atomic.Int64
	outFrame atomic.Int64

	audioCadence []int
	cadencePos   int

	out *queue.Queue[*media.OutputFrame]

	// pendingFields accumulates filtered video frames until there are
	// opts.Video.FieldCount of them, at which point assembleLoop pairs
	// them into a single OutputFrame.
	pendingFields []*media.Frame

	stateMu sync.Mutex
	state   State
	frameNo int64

	prevFrame *media.OutputFrame

	// pastEOF latches once the EOF sentinel has been popped off out by a
	// caller, so repeated NextFrame calls keep reporting media.PullEOF
	// instead of racing TryPop's empty-queue case (media.PullLate) once
	// the sentinel itself has already been drained. A Seek (including a
	// loop-back) clears it, since that's what "post-EOF seek" means.
	pastEOF atomic.Bool

	metrics *diag.Metrics

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Open opens opts.URL and starts the orchestrator's background pipeline.
func Open(opts Options) (*Producer, error) {
	opts.setDefaults()

	d, err := demux.Open(demux.Options{
		URL:              opts.URL,
		QueueCapacity:    demux.DefaultQueueCapacity,
		ReadWriteTimeout: opts.ReadWriteTimeout,
		Reconnect:        opts.Reconnect,
	})
	if err != nil {
		return nil, err
	}

	p := &Producer{
		opts:     opts,
		demuxer:  d,
		decoders: map[int]*decode.Decoder{},
		streams:  map[int]media.StreamDescriptor{},
		out:      queue.New[*media.OutputFrame](opts.QueueCapacity, func(o *media.OutputFrame) bool { return o == nil }),
	}

	for _, sd := range d.Streams() {
		p.streams[sd.Index] = sd
		dec, err := decode.Open(sd, sd.ExtraData)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.decodersMu.Lock()
		p.decoders[sd.Index] = dec
		p.decodersMu.Unlock()
	}

	if err := p.buildGraphs(); err != nil {
		p.Close()
		return nil, err
	}

	p.inFrame.Store(opts.In)
	p.outFrame.Store(opts.Out)

	p.audioCadence = deriveAudioCadence(opts.Audio.SampleRate, opts.Video.FrameRate)

	if opts.Registerer != nil {
		p.metrics = diag.NewMetrics(opts.Registerer, uuid.NewString())
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	g.Go(func() error { return p.dispatchLoop(gctx) })
	g.Go(func() error { return p.assembleLoop(gctx) })

	return p, nil
}

func (p *Producer) buildGraphs() error {
	var videoInputs, audioInputs []filter.Input
	for idx, sd := range p.streams {
		in := filter.Input{Decoder: p.decoders[idx], Stream: sd}
		if sd.Kind == media.KindVideo {
			videoInputs = append(videoInputs, in)
		} else if sd.Kind == media.KindAudio {
			audioInputs = append(audioInputs, in)
		}
	}
	if len(videoInputs) > 0 {
		vg, err := filter.NewVideoGraph(p.opts.Video, videoInputs)
		if err != nil {
			return err
		}
		p.videoGraph = vg
	}
	if len(audioInputs) > 0 {
		ag, err := filter.NewAudioGraph(p.opts.Audio, audioInputs)
		if err != nil {
			return err
		}
		p.audioGraph = ag
	}
	return nil
}

// deriveAudioCadence computes the repeating per-video-frame audio sample
// count array: the shortest whole-sample pattern whose one full rotation
// of n frames holds exactly sampleRate*n/frameRate samples, the way a
// non-integer ratio like 48000Hz/29.97fps is paced without drift: some
// frames take one more sample than others, rotating through that pattern.
func deriveAudioCadence(sampleRate int, frameRate media.Rational) []int {
	if sampleRate <= 0 || frameRate.Num <= 0 {
		return []int{0}
	}
	num := int64(sampleRate) * int64(frameRate.Den)
	den := int64(frameRate.Num)
	g, b := num, den
	for b != 0 {
		g, b = b, g%b
	}
	num, den = num/g, den/g
	base := num / den
	rem := num % den
	if rem == 0 {
		return []int{int(base)}
	}
	cadence := make([]int, den)
	acc := int64(0)
	for i := range cadence {
		acc += rem
		if acc >= den {
			acc -= den
			cadence[i] = int(base) + 1
		} else {
			cadence[i] = int(base)
		}
	}
	return cadence
}

func (p *Producer) nextCadence() int {
	n := p.audioCadence[p.cadencePos]
	p.cadencePos = (p.cadencePos + 1) % len(p.audioCadence)
	return n
}

// dispatchLoop drains demuxer packets and feeds them to the matching
// decoder, fanning EOSStreamIndex out to every decoder.
func (p *Producer) dispatchLoop(ctx context.Context) error {
	pending := map[int]*media.Packet{}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		p.demuxer.Drain(func(pkt *media.Packet) bool {
			if pkt.StreamIndex == demux.EOSStreamIndex {
				p.decodersMu.Lock()
				for idx, dec := range p.decoders {
					dec.TryPush(media.EOSPacket(idx))
				}
				p.decodersMu.Unlock()
				pkt.Release()
				return true
			}
			p.decodersMu.Lock()
			dec, ok := p.decoders[pkt.StreamIndex]
			p.decodersMu.Unlock()
			if !ok {
				pkt.Release()
				return true
			}
			if !dec.TryPush(pkt) {
				pending[pkt.StreamIndex] = pkt
				return false
			}
			return true
		})

		for idx, pkt := range pending {
			p.decodersMu.Lock()
			dec := p.decoders[idx]
			p.decodersMu.Unlock()
			if dec.TryPush(pkt) {
				delete(pending, idx)
			}
		}

		time.Sleep(time.Millisecond)
	}
}

type fieldFillResult int

const (
	fieldsPending fieldFillResult = iota
	fieldsReady
	fieldsEOF
)

func (p *Producer) fieldCount() int {
	n := p.opts.Video.FieldCount
	if n < 1 {
		n = 1
	}
	return n
}

// fillVideoFields tops up p.pendingFields to fieldCount video frames
// without blocking. An audio-only pipeline (no video graph) always
// reports fieldsReady with an empty buffer.
func (p *Producer) fillVideoFields(fieldCount int) fieldFillResult {
	if p.videoGraph == nil {
		return fieldsReady
	}
	for len(p.pendingFields) < fieldCount {
		vres := p.videoGraph.Poll()
		switch vres.Status {
		case filter.ResultOk:
			p.pendingFields = append(p.pendingFields, vres.Frame)
		case filter.ResultAgain:
			return fieldsPending
		case filter.ResultEOF:
			return fieldsEOF
		}
	}
	return fieldsReady
}

// dropPendingFields releases and clears any field frames staged but not
// yet paired into an OutputFrame; this is the "drop the oldest to
// re-align field parity" edge case applied at its simplest: a seek or
// loop boundary discards a leftover unpaired field rather than carrying
// it across the discontinuity.
func (p *Producer) dropPendingFields() {
	for _, f := range p.pendingFields {
		f.Release()
	}
	p.pendingFields = p.pendingFields[:0]
}

// drainAudioSurplus pulls and discards audio until the audio graph also
// reaches EOF, the case where video ends before audio: the surplus tail
// is dropped rather than emitted with no picture to pair it against.
func (p *Producer) drainAudioSurplus(fieldCount int) {
	if p.audioGraph == nil {
		return
	}
	for {
		n := p.nextCadence() / fieldCount
		if n < 1 {
			n = 1
		}
		ares := p.audioGraph.PollSamples(n)
		switch ares.Status {
		case filter.ResultAgain:
			time.Sleep(2 * time.Millisecond)
		case filter.ResultOk:
			ares.Frame.Release()
		case filter.ResultEOF:
			return
		}
	}
}

func (p *Producer) handleVideoEOF(fieldCount int) error {
	p.dropPendingFields()
	p.drainAudioSurplus(fieldCount)

	if p.opts.Loop {
		return p.loopSeek(p.inFrame.Load())
	}
	p.out.Push(nil)
	p.setState(StateTerminating)
	return nil
}

// enforceRange checks the just-produced frame against outFrame and, if
// the clip has reached its out point, either loops back to inFrame
// (flush=false, so already-buffered output stays intact) or pauses the
// demuxer so the last in-range frame remains the picture on screen.
// outFrame < 0 means "play to end of stream" (no out point).
func (p *Producer) enforceRange() error {
	out := p.outFrame.Load()
	if out < 0 || p.frameNo < out {
		return nil
	}
	if p.opts.Loop {
		return p.loopSeek(p.inFrame.Load())
	}
	p.Pause()
	return nil
}

// assembleLoop pairs opts.Video.FieldCount consecutive filtered video
// frames (1 for progressive, 2 for interlaced) with their matching
// cadence of audio samples and pushes the resulting OutputFrame, pacing
// itself against the bounded output queue so it never runs far ahead of
// what a compositor is consuming.
func (p *Producer) assembleLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if p.currentState() != StateRunning {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		fieldCount := p.fieldCount()

		if p.videoGraph == nil {
			if err := p.assembleAudioOnlyTick(); err != nil {
				return err
			}
			continue
		}

		switch p.fillVideoFields(fieldCount) {
		case fieldsPending:
			time.Sleep(2 * time.Millisecond)
			continue
		case fieldsEOF:
			if err := p.handleVideoEOF(fieldCount); err != nil {
				return err
			}
			continue
		}

		var audio *media.Frame
		if p.audioGraph != nil {
			n := p.nextCadence() / fieldCount
			if n < 1 {
				n = 1
			}
			ares := p.audioGraph.PollSamples(n)
			switch ares.Status {
			case filter.ResultAgain:
				// Video fields stay staged; retry the audio pull next tick.
				continue
			case filter.ResultOk:
				audio = ares.Frame
			case filter.ResultEOF:
				// Audio exhausted first: keep emitting video-only ticks.
			}
		}

		video := p.pendingFields[0]
		var second *media.Frame
		if fieldCount > 1 {
			second = p.pendingFields[1]
		}
		p.pendingFields = p.pendingFields[:0]

		of := &media.OutputFrame{
			Draw:     media.CompositeFrame{Video: video, Second: second, Audio: audio},
			PTS:      video.PTS,
			Duration: media.RescaleQ(1, p.opts.Video.FrameRate.Invert(), media.TimeBaseQ),
		}
		p.prevFrame = of
		p.frameNo++

		if !p.out.Push(of) {
			return nil
		}
		if p.metrics != nil {
			p.metrics.RecordFrame()
			p.metrics.OutputBufferDepth.Set(float64(p.out.Len()))
		}
		if err := p.enforceRange(); err != nil {
			return err
		}
	}
}

// assembleAudioOnlyTick handles the audio-only pipeline (no video
// stream): output timing derives straight from the audio sink rather
// than from a field-count cadence divisor.
func (p *Producer) assembleAudioOnlyTick() error {
	if p.audioGraph == nil {
		p.out.Push(nil)
		p.setState(StateTerminating)
		return nil
	}
	ares := p.audioGraph.PollSamples(p.nextCadence())
	switch ares.Status {
	case filter.ResultAgain:
		time.Sleep(2 * time.Millisecond)
		return nil
	case filter.ResultEOF:
		if p.opts.Loop {
			return p.loopSeek(p.inFrame.Load())
		}
		p.out.Push(nil)
		p.setState(StateTerminating)
		return nil
	}

	of := &media.OutputFrame{
		Draw: media.CompositeFrame{Audio: ares.Frame},
		PTS:  ares.Frame.PTS,
		Duration: media.RescaleQ(int64(ares.Frame.NumSamples),
			media.Rational{Num: 1, Den: p.opts.Audio.SampleRate}, media.TimeBaseQ),
	}
	p.prevFrame = of
	p.frameNo++
	if !p.out.Push(of) {
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordFrame()
		p.metrics.OutputBufferDepth.Set(float64(p.out.Len()))
	}
	return p.enforceRange()
}

func (p *Producer) currentState() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Producer) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// NextFrame performs a non-blocking pull of the next OutputFrame:
// media.PullOk with a frame when one is ready, media.PullLate with no
// frame when the pipeline hasn't produced one for this tick yet (the
// caller should keep ticking its own clock, optionally holding
// PrevFrame on screen, and retry), or media.PullEOF once the stream has
// ended and Loop is disabled.
func (p *Producer) NextFrame() (*media.OutputFrame, media.PullStatus) {
	if p.pastEOF.Load() {
		return nil, media.PullEOF
	}
	of, ok := p.out.TryPop()
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordUnderflow()
		}
		return nil, media.PullLate
	}
	if of == nil {
		p.pastEOF.Store(true)
		return nil, media.PullEOF
	}
	return of, media.PullOk
}

// PrevFrame returns the most recently produced OutputFrame, used to
// repeat a frame when the compositor's clock outruns decode (a paused or
// stalled input holding its last picture on screen).
func (p *Producer) PrevFrame() *media.OutputFrame {
	return p.prevFrame
}

// Pause halts frame assembly without tearing down the pipeline.
func (p *Producer) Pause() { p.setState(StatePaused); p.demuxer.Pause() }

// Resume continues frame assembly after Pause.
func (p *Producer) Resume() { p.setState(StateRunning); p.demuxer.Resume() }

// Seek repositions playback to the absolute frame index frameIndex, flushing
// every decoder, rebuilding both filter graphs, and discarding any
// already-buffered output so no pre-seek frame reaches the output queue.
func (p *Producer) Seek(frameIndex int64) error {
	return p.seek(frameIndex, true)
}

// loopSeek repositions playback to frameIndex the same way Seek does,
// except it passes flush=false to seek: already-buffered output survives
// the loop-back instead of being discarded, per the loop-EOF path's
// "preserve already-buffered output" contract.
func (p *Producer) loopSeek(frameIndex int64) error {
	return p.seek(frameIndex, false)
}

// seek is the shared implementation behind Seek and loopSeek. The
// demuxer's own pre-decode packet queue is always flushed (those packets
// are stale the instant SeekFrame lands, loop-back or not); flush governs
// only whether the producer's own output queue is cleared, which is what
// distinguishes a manual seek (discard everything downstream) from a
// loop-back (keep feeding the compositor with what's already queued).
func (p *Producer) seek(frameIndex int64, flush bool) error {
	p.setState(StateSeeking)
	defer p.setState(StateRunning)

	ts := media.RescaleQ(frameIndex, p.opts.Video.FrameRate.Invert(), media.TimeBaseQ)
	if err := p.demuxer.Seek(ts, true); err != nil {
		return err
	}
	p.decodersMu.Lock()
	for _, dec := range p.decoders {
		dec.Flush()
	}
	p.decodersMu.Unlock()

	if p.videoGraph != nil {
		if err := p.videoGraph.Reset(p.opts.Video); err != nil {
			return err
		}
	}
	if p.audioGraph != nil {
		if err := p.audioGraph.Reset(p.opts.Audio); err != nil {
			return err
		}
	}

	p.dropPendingFields()
	p.frameNo = frameIndex
	p.cadencePos = 0
	p.pastEOF.Store(false)
	if flush {
		p.out.Clear(func(o *media.OutputFrame) {})
	}
	return nil
}

// NbFrames returns the clip's total frame count in the current video
// frame rate, or -1 if unknown (no video stream, or the container didn't
// report a duration), signaling to callers like command.Resolve that the
// nbFrames > 0 clamp guard should stay disabled rather than clamp to a
// bogus value.
func (p *Producer) NbFrames() int64 {
	sd, ok := p.videoStreamDescriptor()
	if !ok || sd.Duration <= 0 {
		return -1
	}
	return media.RescaleQ(sd.Duration, sd.TimeBase, p.opts.Video.FrameRate.Invert())
}

func (p *Producer) videoStreamDescriptor() (media.StreamDescriptor, bool) {
	p.decodersMu.Lock()
	defer p.decodersMu.Unlock()
	for _, sd := range p.streams {
		if sd.Kind == media.KindVideo {
			return sd, true
		}
	}
	return media.StreamDescriptor{}, false
}

// SetIn updates the live IN bound used by loop-back and future Seek
// callers; it takes effect immediately against the running pipeline.
func (p *Producer) SetIn(frameIndex int64) { p.inFrame.Store(frameIndex) }

// SetOut updates the live OUT bound enforced by enforceRange after every
// produced frame; a negative value means "play to end of stream."
func (p *Producer) SetOut(frameIndex int64) { p.outFrame.Store(frameIndex) }

// Loop enables or disables end-of-stream looping back to the live IN bound.
func (p *Producer) Loop(enabled bool) { p.opts.Loop = enabled }

// Time returns the current playback position as a frame index.
func (p *Producer) Time() int64 { return p.frameNo }

// Close tears down the pipeline in reverse order of acquisition,
// aggregating every stage's teardown error rather than stopping at the
// first one.
func (p *Producer) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		p.group.Wait()
	}
	p.out.Abort()

	var result *multierror.Error
	if p.videoGraph != nil {
		result = multierror.Append(result, p.videoGraph.Close())
	}
	if p.audioGraph != nil {
		result = multierror.Append(result, p.audioGraph.Close())
	}
	p.decodersMu.Lock()
	for _, dec := range p.decoders {
		result = multierror.Append(result, dec.Close())
	}
	p.decodersMu.Unlock()
	if p.demuxer != nil {
		result = multierror.Append(result, p.demuxer.Close())
	}
	return result.ErrorOrNil()
}
