//go:build !avpipe

package filter

import "playhead/internal/media"

// VideoGraph is the stub video filter graph used when the module is
// built without the avpipe tag.
type VideoGraph struct{}

// NewVideoGraph always fails in the stub build.
func NewVideoGraph(spec VideoSpec, inputs []Input) (*VideoGraph, error) {
	return nil, ErrNotAvailable
}

func (g *VideoGraph) Poll() PullResult          { return PullResult{Status: ResultEOF} }
func (g *VideoGraph) Reset(spec VideoSpec) error { return ErrNotAvailable }
func (g *VideoGraph) Close() error              { return nil }

// AudioGraph is the stub audio filter graph used when the module is
// built without the avpipe tag.
type AudioGraph struct{}

// NewAudioGraph always fails in the stub build.
func NewAudioGraph(spec AudioSpec, inputs []Input) (*AudioGraph, error) {
	return nil, ErrNotAvailable
}

func (g *AudioGraph) PollSamples(n int) PullResult { return PullResult{Status: ResultEOF} }
func (g *AudioGraph) Reset(spec AudioSpec) error   { return ErrNotAvailable }
func (g *AudioGraph) Close() error                 { return nil }

var _ = media.KindVideo
