//go:build avpipe

package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"playhead/internal/decode"
	"playhead/internal/media"
	"playhead/internal/queue"
)

// videoSinkWhitelist is the set of pixel formats the video sink accepts,
// intentionally excluding every 4:2:0 format: this graph's job is to
// normalize toward a downstream compositor's texture upload path, which
// wants full chroma resolution or an alpha channel, not a decode-friendly
// planar 4:2:0 layout.
var videoSinkWhitelist = []string{"yuv444p", "yuv422p", "yuvj444p", "yuvj422p", "rgb24", "bgra"}

// audioSinkFormat is the sample format the audio sink is pinned to
// regardless of what a caller's AudioSpec.SampleFmt names; the producer's
// cadence math and CopyPlanesInto both assume fixed-width signed samples.
const audioSinkFormat = "s32"
const audioSinkBytesPerSample = 4

// graph is the shared machinery behind VideoGraph and AudioGraph: one
// buffer source per bound input pad, a chain of processing filters, a
// single buffersink, and a worker goroutine that keeps pulling from every
// decoder and pushing whatever the sink yields onto an output queue.
type graph struct {
	g    *astiav.FilterGraph
	srcs map[string]*astiav.FilterContext
	sink *astiav.FilterContext

	inputs []Input
	labels []string // labels[i] names the source feeding inputs[i]

	out     *queue.Queue[*media.Frame]
	closing chan struct{}
	wg      sync.WaitGroup
}

// VideoGraph builds a video normalization graph from spec.Spec (the
// user-supplied filter chain, or a plain passthrough when empty), followed
// by the mandatory deinterlace and field-rate retime stages, terminating at
// a buffersink restricted to videoSinkWhitelist.
type VideoGraph struct{ graph }

func NewVideoGraph(spec VideoSpec, inputs []Input) (*VideoGraph, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("filter: video graph needs at least one input")
	}

	body, labels := buildVideoChain(spec, len(inputs))
	g, srcs, sink, err := buildGraph(body, inputs, labels, false, videoSinkWhitelist, "")
	if err != nil {
		return nil, fmt.Errorf("filter: video: %w", err)
	}

	vg := &VideoGraph{graph{g: g, srcs: srcs, sink: sink, inputs: inputs, labels: labels,
		out:     queue.New[*media.Frame](2, func(f *media.Frame) bool { return f == nil }),
		closing: make(chan struct{})}}
	vg.wg.Add(1)
	go vg.pump()
	return vg, nil
}

// buildVideoChain implements the filter-graph construction protocol for
// video: start from the caller's spec (default to a bare passthrough),
// pre-parse it for pads no filter in the chain produces, and only when the
// spec itself leaves exactly one such pad unbound while two raw streams
// are on offer does it prepend an alphamerge to fold them into that pad.
// Otherwise every unbound pad gets wired straight to its own buffer
// source, in the order it's named ("in0", "in1", ...). The mandatory
// bwdif+fps tail is always appended after whatever the spec produces,
// with fps pinned to FrameRate*FieldCount so an interlaced target emits
// one filtered frame per field.
func buildVideoChain(spec VideoSpec, nInputs int) (body string, inputLabels []string) {
	user := strings.TrimSpace(spec.Spec)
	if user == "" {
		user = "[in0]null[user0]"
	}

	unbound := countUnboundInputs(user)
	if len(unbound) == 0 {
		unbound = []string{"in0"}
	}

	if len(unbound) == 1 && nInputs == 2 {
		merge := fmt.Sprintf("[in0][in1]alphamerge[%s]", unbound[0])
		user = merge + ";" + user
		inputLabels = []string{"in0", "in1"}
	} else {
		inputLabels = unbound
	}

	fieldCount := spec.FieldCount
	if fieldCount < 1 {
		fieldCount = 1
	}
	deint := "0"
	if spec.Interlaced {
		deint = "1"
	}

	out := lastOutputLabel(user)
	tail := fmt.Sprintf("bwdif=mode=send_field:parity=auto:deint=%s,fps=fps=%d/%d[out]",
		deint, spec.FrameRate.Num*fieldCount, spec.FrameRate.Den)
	body = fmt.Sprintf("%s;[%s]%s", user, out, tail)
	return body, inputLabels
}

// AudioGraph builds an audio normalization graph from spec.Spec, an
// aresample pacing stage, and an internal sample accumulator so
// PollSamples can deliver exactly the caller's requested count instead of
// whatever the sink handed back on a given pull.
type AudioGraph struct {
	graph
	channels int
	pending  *media.Frame
}

func NewAudioGraph(spec AudioSpec, inputs []Input) (*AudioGraph, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("filter: audio graph needs at least one input")
	}

	body, labels := buildAudioChain(spec, len(inputs))
	g, srcs, sink, err := buildGraph(body, inputs, labels, true, nil, audioSinkFormat)
	if err != nil {
		return nil, fmt.Errorf("filter: audio: %w", err)
	}

	ag := &AudioGraph{
		graph: graph{g: g, srcs: srcs, sink: sink, inputs: inputs, labels: labels,
			out:     queue.New[*media.Frame](2, func(f *media.Frame) bool { return f == nil }),
			closing: make(chan struct{})},
		channels: spec.Channels,
	}
	ag.wg.Add(1)
	go ag.pump()
	return ag, nil
}

// buildAudioChain mirrors buildVideoChain for audio: default-empty spec
// degenerates to a passthrough, an amerge folds every free stream down to
// a single unbound pad when the spec itself only wants one, and the
// mandatory aresample+channel-layout tail runs last. The sample format
// constraint is enforced at the sink (audioSinkFormat), not in the chain.
func buildAudioChain(spec AudioSpec, nInputs int) (body string, inputLabels []string) {
	user := strings.TrimSpace(spec.Spec)
	if user == "" {
		user = "[in0]anull[user0]"
	}

	unbound := countUnboundInputs(user)
	if len(unbound) == 0 {
		unbound = []string{"in0"}
	}

	if len(unbound) == 1 && nInputs > 1 {
		var srcs strings.Builder
		labels := make([]string, nInputs)
		for i := 0; i < nInputs; i++ {
			fmt.Fprintf(&srcs, "[in%d]", i)
			labels[i] = fmt.Sprintf("in%d", i)
		}
		merge := fmt.Sprintf("%samerge=inputs=%d[%s]", srcs.String(), nInputs, unbound[0])
		user = merge + ";" + user
		inputLabels = labels
	} else {
		inputLabels = unbound
	}

	out := lastOutputLabel(user)
	body = fmt.Sprintf("%s;[%s]aresample=sample_rate=%d:async=2000,aformat=channel_layouts=%s[out]",
		user, out, spec.SampleRate, channelLayoutName(spec.Channels))
	return body, inputLabels
}

func channelLayoutName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%dc", channels)
	}
}

var leadLabelRe = regexp.MustCompile(`^\[(\w+)\]`)
var trailLabelRe = regexp.MustCompile(`\[(\w+)\]$`)

// countUnboundInputs returns, sorted, every pad label a filterchain in
// body references at its head but that no filterchain in body produces at
// its tail: the pads a buffer source (or a prepended merge stage) has to
// supply from outside.
func countUnboundInputs(body string) []string {
	produced := map[string]bool{}
	referenced := map[string]bool{}
	for _, chain := range strings.Split(body, ";") {
		chain = strings.TrimSpace(chain)
		if chain == "" {
			continue
		}
		for _, l := range leadingLabels(chain) {
			referenced[l] = true
		}
		for _, l := range trailingLabels(chain) {
			produced[l] = true
		}
	}
	var unbound []string
	for l := range referenced {
		if !produced[l] {
			unbound = append(unbound, l)
		}
	}
	sort.Strings(unbound)
	return unbound
}

func leadingLabels(chain string) []string {
	var labels []string
	rest := chain
	for {
		m := leadLabelRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		labels = append(labels, m[1])
		rest = rest[len(m[0]):]
	}
	return labels
}

func trailingLabels(chain string) []string {
	var labels []string
	rest := chain
	for {
		m := trailLabelRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		labels = append([]string{m[1]}, labels...)
		rest = rest[:len(rest)-len(m[0])]
	}
	return labels
}

// lastOutputLabel returns the trailing pad label of body's last
// filterchain, the pad the mandatory tail stage attaches to.
func lastOutputLabel(body string) string {
	chains := strings.Split(body, ";")
	last := strings.TrimSpace(chains[len(chains)-1])
	labels := trailingLabels(last)
	if len(labels) == 0 {
		return "out"
	}
	return labels[len(labels)-1]
}

// inputIndex parses the positional index out of an "inN" style label.
func inputIndex(label string) (int, bool) {
	if !strings.HasPrefix(label, "in") {
		return 0, false
	}
	n, err := strconv.Atoi(label[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// buildGraph allocates the graph, one buffer/abuffer source per label in
// inputLabels (positionally mapped back to inputs via inputIndex), a
// buffersink/abuffersink constrained to pixFormats or sampleFormat, and
// parses spec_ to wire everything together. Parse2 rejects a spec that
// doesn't resolve to exactly one dangling output pad, which is what
// enforces the "exactly one output pad" requirement here.
func buildGraph(spec_ string, inputs []Input, inputLabels []string, audio bool, pixFormats []string, sampleFormat string) (*astiav.FilterGraph, map[string]*astiav.FilterContext, *astiav.FilterContext, error) {
	g := astiav.AllocFilterGraph()
	if g == nil {
		return nil, nil, nil, fmt.Errorf("filter: alloc graph")
	}

	srcName := "buffer"
	sinkName := "buffersink"
	if audio {
		srcName = "abuffer"
		sinkName = "abuffersink"
	}

	srcs := make(map[string]*astiav.FilterContext, len(inputLabels))
	var head, tail *astiav.FilterInOut
	for _, label := range inputLabels {
		idx, ok := inputIndex(label)
		if !ok || idx >= len(inputs) {
			return nil, nil, nil, fmt.Errorf("filter: spec references unknown input pad %q", label)
		}
		args := sourceArgs(inputs[idx].Stream, audio)
		fc, err := g.NewFilterContext(astiav.FindFilter(srcName), label, args)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("filter: create source %s: %w", label, err)
		}
		srcs[label] = fc

		io := astiav.AllocFilterInOut()
		io.SetName(label)
		io.SetFilterContext(fc)
		io.SetPadIdx(0)
		if head == nil {
			head = io
		} else {
			tail.SetNext(io)
		}
		tail = io
	}

	sink, err := g.NewFilterContext(astiav.FindFilter(sinkName), "out", "")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("filter: create sink: %w", err)
	}
	if !audio && len(pixFormats) > 0 {
		formats := make([]astiav.PixelFormat, len(pixFormats))
		for i, name := range pixFormats {
			formats[i] = astiav.FindPixelFormatByName(name)
		}
		sink.BuffersinkSetPixelFormats(formats)
	}
	if audio && sampleFormat != "" {
		sink.BuffersinkSetSampleFormats([]astiav.SampleFormat{astiav.FindSampleFormatByName(sampleFormat)})
	}

	out := astiav.AllocFilterInOut()
	out.SetName("out")
	out.SetFilterContext(sink)
	out.SetPadIdx(0)

	if err := g.Parse2(spec_, head, out); err != nil {
		return nil, nil, nil, fmt.Errorf("filter: parse %q: %w", spec_, err)
	}
	if err := g.Configure(); err != nil {
		return nil, nil, nil, fmt.Errorf("filter: configure: %w", err)
	}

	return g, srcs, sink, nil
}

func sourceArgs(desc media.StreamDescriptor, audio bool) string {
	if audio {
		return fmt.Sprintf("time_base=%d/%d:sample_rate=%d:sample_fmt=%s:channel_layout=%s",
			desc.TimeBase.Num, desc.TimeBase.Den, desc.SampleRate, desc.SampleFormat, channelLayoutName(desc.Channels))
	}
	return fmt.Sprintf("video_size=%dx%d:pix_fmt=%s:time_base=%d/%d:pixel_aspect=%d/%d",
		desc.Width, desc.Height, desc.PixelFormat, desc.TimeBase.Num, desc.TimeBase.Den,
		desc.SampleAspect.Num, desc.SampleAspect.Den)
}

// pump feeds every decoder's decoded frames into their bound buffer
// source and drains whatever the sink produces onto the output queue.
// A decoder whose position in g.inputs isn't named by any bound source label
// (a free stream the spec's pad count left unattached) is still drained
// so it doesn't back up, just never fed into the graph.
func (g *graph) pump() {
	defer g.wg.Done()
	frame := astiav.AllocFrame()
	defer frame.Free()

	eof := make([]bool, len(g.inputs))
	for {
		select {
		case <-g.closing:
			return
		default:
		}

		progressed := false
		for i, in := range g.inputs {
			if eof[i] {
				continue
			}
			label := fmt.Sprintf("in%d", i)
			src, bound := g.srcs[label]

			res := in.Decoder.Poll()
			switch res.Status {
			case decode.ResultOk:
				progressed = true
				if bound {
					toAstiavFrame(res.Frame, frame)
					src.BuffersrcAddFrame(frame, astiav.NewBuffersrcFlags())
					frame.Unref()
				}
				res.Frame.Release()
			case decode.ResultEOF:
				eof[i] = true
				if bound {
					src.BuffersrcAddFrame(nil, astiav.NewBuffersrcFlags())
				}
			}
		}

		for {
			if err := g.sink.BuffersinkGetFrame(frame, astiav.NewBuffersinkFlags()); err != nil {
				break
			}
			progressed = true
			mf := fromAstiavFrame(frame)
			frame.Unref()
			if !g.out.Push(mf) {
				return
			}
		}

		if !progressed && allTrue(eof) {
			g.out.Push(nil)
			return
		}
	}
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

func toAstiavFrame(mf *media.Frame, frame *astiav.Frame) {
	frame.SetPts(media.RescaleQ(mf.PTS, media.TimeBaseQ, mf.TimeBase))
	if mf.Kind == media.KindVideo {
		frame.SetWidth(mf.Width)
		frame.SetHeight(mf.Height)
		frame.SetPixelFormat(astiav.FindPixelFormatByName(mf.PixelFormat))
	} else {
		frame.SetSampleRate(mf.SampleRate)
		frame.SetNbSamples(mf.NumSamples)
	}
}

func fromAstiavFrame(frame *astiav.Frame) *media.Frame {
	mf := &media.Frame{TimeBase: media.TimeBaseQ, PTS: int64(frame.Pts())}
	if frame.Width() > 0 {
		mf.Kind = media.KindVideo
		mf.Width = frame.Width()
		mf.Height = frame.Height()
		mf.PixelFormat = frame.PixelFormat().String()
		for i, plane := range frame.Data() {
			if i >= 8 {
				break
			}
			mf.Data[i] = append([]byte(nil), plane...)
		}
	} else {
		mf.Kind = media.KindAudio
		mf.SampleRate = frame.SampleRate()
		mf.NumSamples = frame.NumSamples()
		mf.SampleFormat = audioSinkFormat
		mf.Planar = astiav.FindSampleFormatByName(audioSinkFormat).Planar()
		mf.Channels = frame.ChannelLayout().Channels()
		for i, plane := range frame.Data() {
			if i >= 8 {
				break
			}
			mf.AudioData[i] = append([]byte(nil), plane...)
		}
	}
	return mf
}

// Poll performs a non-blocking pull of the next filtered video frame.
func (g *VideoGraph) Poll() PullResult { return pollGraph(&g.graph) }

// Reset tears down and reconstructs the underlying avfilter graph from
// spec, discarding any frame in flight through bwdif/fps or a pending
// merge stage. Called on every seek/loop/EOF-restart so no state that
// predates the discontinuity can leak into post-seek output.
func (g *VideoGraph) Reset(spec VideoSpec) error {
	if err := g.graph.rebuild(func() (*astiav.FilterGraph, map[string]*astiav.FilterContext, *astiav.FilterContext, error) {
		body, labels := buildVideoChain(spec, len(g.inputs))
		g.labels = labels
		return buildGraph(body, g.inputs, labels, false, videoSinkWhitelist, "")
	}); err != nil {
		return err
	}
	g.wg.Add(1)
	go g.pump()
	return nil
}

// Close stops the pump goroutine and frees the graph.
func (g *VideoGraph) Close() error { return closeGraph(&g.graph) }

// PollSamples performs a non-blocking pull that, once it has accumulated
// n samples across however many sink pulls that takes, returns exactly n
// and holds any remainder for the next call. n is the cadence-array value
// the caller is honoring for this output tick.
func (g *AudioGraph) PollSamples(n int) PullResult {
	if n <= 0 {
		return PullResult{Status: ResultAgain}
	}
	for g.pending == nil || g.pending.NumSamples < n {
		r := pollGraph(&g.graph)
		switch r.Status {
		case ResultAgain:
			return PullResult{Status: ResultAgain}
		case ResultEOF:
			if g.pending != nil && g.pending.NumSamples > 0 {
				out := g.pending
				g.pending = nil
				return PullResult{Status: ResultOk, Frame: out}
			}
			return PullResult{Status: ResultEOF}
		case ResultOk:
			g.pending = appendAudioFrame(g.pending, r.Frame)
		}
	}
	head, rest := splitAudioFrame(g.pending, n)
	g.pending = rest
	return PullResult{Status: ResultOk, Frame: head}
}

// Reset tears down and reconstructs the underlying avfilter graph from
// spec, discarding any accumulated pending samples along with it. Called
// on every seek/loop/EOF-restart for the same reason VideoGraph.Reset is.
func (g *AudioGraph) Reset(spec AudioSpec) error {
	if err := g.graph.rebuild(func() (*astiav.FilterGraph, map[string]*astiav.FilterContext, *astiav.FilterContext, error) {
		body, labels := buildAudioChain(spec, len(g.inputs))
		g.labels = labels
		return buildGraph(body, g.inputs, labels, true, nil, audioSinkFormat)
	}); err != nil {
		return err
	}
	if g.pending != nil {
		g.pending.Release()
		g.pending = nil
	}
	g.wg.Add(1)
	go g.pump()
	return nil
}

// Close stops the pump goroutine and frees the graph.
func (g *AudioGraph) Close() error { return closeGraph(&g.graph) }

func appendAudioFrame(dst, src *media.Frame) *media.Frame {
	if dst == nil {
		return src
	}
	if dst.Planar {
		for i := range dst.AudioData {
			if src.AudioData[i] == nil {
				continue
			}
			dst.AudioData[i] = append(dst.AudioData[i], src.AudioData[i]...)
		}
	} else {
		dst.AudioData[0] = append(dst.AudioData[0], src.AudioData[0]...)
	}
	dst.NumSamples += src.NumSamples
	return dst
}

func splitAudioFrame(f *media.Frame, n int) (head, rest *media.Frame) {
	head = &media.Frame{
		Kind: media.KindAudio, TimeBase: f.TimeBase, PTS: f.PTS,
		SampleFormat: f.SampleFormat, SampleRate: f.SampleRate,
		ChannelLayout: f.ChannelLayout, Channels: f.Channels,
		Planar: f.Planar, NumSamples: n,
	}
	remaining := f.NumSamples - n
	if f.Planar {
		for i, p := range f.AudioData {
			if p == nil {
				continue
			}
			cut := n * audioSinkBytesPerSample
			if cut > len(p) {
				cut = len(p)
			}
			head.AudioData[i] = p[:cut]
			if remaining > 0 {
				rest = ensureRest(rest, f)
				rest.AudioData[i] = append([]byte(nil), p[cut:]...)
			}
		}
	} else {
		stride := audioSinkBytesPerSample * f.Channels
		cut := n * stride
		if cut > len(f.AudioData[0]) {
			cut = len(f.AudioData[0])
		}
		head.AudioData[0] = f.AudioData[0][:cut]
		if remaining > 0 {
			rest = ensureRest(rest, f)
			rest.AudioData[0] = append([]byte(nil), f.AudioData[0][cut:]...)
		}
	}
	if remaining > 0 {
		rest.NumSamples = remaining
		rest.PTS = f.PTS + media.RescaleQ(int64(n), media.Rational{Num: 1, Den: f.SampleRate}, f.TimeBase)
	}
	return head, rest
}

func ensureRest(rest, f *media.Frame) *media.Frame {
	if rest != nil {
		return rest
	}
	return &media.Frame{
		Kind: media.KindAudio, TimeBase: f.TimeBase,
		SampleFormat: f.SampleFormat, SampleRate: f.SampleRate,
		ChannelLayout: f.ChannelLayout, Channels: f.Channels, Planar: f.Planar,
	}
}

func pollGraph(g *graph) PullResult {
	f, ok := g.out.TryPop()
	if !ok {
		return PullResult{Status: ResultAgain}
	}
	if f == nil {
		return PullResult{Status: ResultEOF}
	}
	return PullResult{Status: ResultOk, Frame: f}
}

func closeGraph(g *graph) error {
	close(g.closing)
	g.out.Abort()
	g.wg.Wait()
	g.g.Free()
	return nil
}

// rebuild stops g's pump goroutine, frees its current avfilter graph, and
// replaces it with whatever build constructs, leaving g.inputs untouched
// (the decoder set doesn't change across a seek). The caller restarts the
// pump goroutine once rebuild returns.
func (g *graph) rebuild(build func() (*astiav.FilterGraph, map[string]*astiav.FilterContext, *astiav.FilterContext, error)) error {
	close(g.closing)
	g.wg.Wait()
	g.g.Free()
	g.out.Clear(func(f *media.Frame) {
		if f != nil {
			f.Release()
		}
	})

	ng, srcs, sink, err := build()
	if err != nil {
		return err
	}
	g.g = ng
	g.srcs = srcs
	g.sink = sink
	g.closing = make(chan struct{})
	return nil
}
