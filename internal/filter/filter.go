// Package filter builds and drives the two per-producer filter graphs
// (video and audio) that normalize decoded frames to the target output
// format: deinterlace and retime video to a fixed frame rate, resample
// and pace audio to a fixed sample rate and per-frame sample cadence.
package filter

import (
	"errors"

	"playhead/internal/decode"
	"playhead/internal/media"
)

// ErrNotAvailable is returned when the module is built without avpipe.
var ErrNotAvailable = errors.New("filter: media library not compiled in (build with -tags avpipe)")

// VideoSpec describes the fixed output video format a video graph
// normalizes every input stream's frames to.
type VideoSpec struct {
	Width, Height int
	PixelFormat   string
	FrameRate     media.Rational
	Interlaced    bool
	FieldOrder    string // "tff" or "bff", meaningful only when Interlaced

	// FieldCount is 2 for interlaced output (the fps stage runs at
	// FrameRate*FieldCount and the producer pairs two consecutive filter
	// frames into one output tick) and 1 for progressive output.
	FieldCount int

	// Spec is the user-supplied filter graph body (avfilter's
	// "[in0]...[out]" chain syntax). Empty means "no processing beyond
	// the mandatory deinterlace/retime/format stages this graph always
	// appends".
	Spec string
}

// AudioSpec describes the fixed output audio format an audio graph
// normalizes every input stream's frames to.
type AudioSpec struct {
	SampleRate int
	SampleFmt  string
	Channels   int

	// Spec is the user-supplied filter graph body, same convention as
	// VideoSpec.Spec.
	Spec string
}

// Input describes one filter graph source pad: the decoder it pulls
// from and the StreamDescriptor describing that decoder's frames.
type Input struct {
	Decoder *decode.Decoder
	Stream  media.StreamDescriptor
}

// Result is the pull outcome from a filter graph's sink pad.
type Result = decode.Result

const (
	ResultAgain = decode.ResultAgain
	ResultOk    = decode.ResultOk
	ResultEOF   = decode.ResultEOF
)

// PullResult carries a Result plus the Frame when Result is ResultOk.
type PullResult = decode.PullResult
