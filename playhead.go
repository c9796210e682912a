// Package playhead is a real-time video/audio playback pipeline: it
// demuxes a container, decodes each stream, normalizes video and audio
// through a pair of filter graphs, and hands a downstream compositor a
// time-aligned stream of OutputFrames it can pull on demand.
package playhead

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"playhead/internal/command"
	"playhead/internal/config"
	"playhead/internal/media"
	"playhead/internal/producer"
)

// OutputFrame is re-exported so callers never need to import internal/media.
type OutputFrame = media.OutputFrame

// PullStatus distinguishes why NextFrame returned what it did: PullOk
// carries a real frame, PullLate means the pipeline hasn't produced one
// for this tick yet and the caller should keep ticking its own clock,
// PullEOF means the stream has ended and looping is disabled.
type PullStatus = media.PullStatus

const (
	PullOk   = media.PullOk
	PullLate = media.PullLate
	PullEOF  = media.PullEOF
)

// Options configures a Session.
type Options struct {
	Loop             bool
	In, Out          int64
	ReadWriteTimeout time.Duration
	Reconnect        bool
	Registerer       prometheus.Registerer
}

// Session is one open producer, exposing playback control and frame
// pull as a single façade over the internal pipeline packages.
type Session struct {
	p    *producer.Producer
	cfg  *config.Config
	opts Options
}

// Open opens url under the target format described by cfg and starts
// producing OutputFrames in the background.
func Open(url string, cfg *config.Config, opts Options) (*Session, error) {
	p, err := producer.Open(producer.Options{
		URL:              url,
		Loop:             opts.Loop,
		In:               opts.In,
		Out:              opts.Out,
		Video:            cfg.VideoSpec(),
		Audio:            cfg.AudioSpec(),
		QueueCapacity:    cfg.QueueCapacity,
		ReadWriteTimeout: opts.ReadWriteTimeout,
		Reconnect:        opts.Reconnect,
		Registerer:       opts.Registerer,
	})
	if err != nil {
		return nil, err
	}
	return &Session{p: p, cfg: cfg, opts: opts}, nil
}

// NextFrame performs a non-blocking pull of the next OutputFrame. See
// PullStatus for what each returned status means.
func (s *Session) NextFrame() (*OutputFrame, PullStatus) { return s.p.NextFrame() }

// PrevFrame returns the most recently produced OutputFrame, for a
// compositor that needs to repeat a frame rather than stall.
func (s *Session) PrevFrame() *OutputFrame { return s.p.PrevFrame() }

// Seek repositions playback to frameIndex.
func (s *Session) Seek(frameIndex int64) error { return s.p.Seek(frameIndex) }

// Pause halts frame production without tearing down the pipeline.
func (s *Session) Pause() { s.p.Pause() }

// Resume continues frame production after Pause.
func (s *Session) Resume() { s.p.Resume() }

// Time returns the current playback position as a frame index.
func (s *Session) Time() int64 { return s.p.Time() }

// Width and Height report the session's normalized output dimensions.
func (s *Session) Width() int  { return s.cfg.Video.Width }
func (s *Session) Height() int { return s.cfg.Video.Height }

// Command parses and applies one line of the LOOP/IN/OUT/LENGTH/SEEK
// command surface against this session.
func (s *Session) Command(line string) error {
	c, err := command.Parse(line)
	if err != nil {
		return err
	}
	switch c.Kind {
	case command.KindLoop:
		s.p.Loop(c.Bool)
	case command.KindSeek:
		target := command.Resolve(c, s.p.Time(), s.opts.In, s.opts.Out, s.p.NbFrames())
		return s.p.Seek(target)
	case command.KindIn:
		s.opts.In = c.Frame
		s.p.SetIn(c.Frame)
	case command.KindOut:
		s.opts.Out = c.Frame
		s.p.SetOut(c.Frame)
	case command.KindLength:
		s.opts.Out = s.opts.In + c.Frame
		s.p.SetOut(s.opts.Out)
	}
	return nil
}

// Close tears down the pipeline.
func (s *Session) Close() error { return s.p.Close() }
