// Package decode wraps one codec context per stream: an input packet
// queue, a worker goroutine that drives avcodec, and an output frame
// queue the filter graph pulls from.
package decode

import (
	"errors"

	"playhead/internal/media"
)

// ErrNotAvailable is returned when the module is built without avpipe.
var ErrNotAvailable = errors.New("decode: media library not compiled in (build with -tags avpipe)")

// DefaultInputQueueCapacity matches spec.md's packet input queue size.
const DefaultInputQueueCapacity = 256

// DefaultOutputQueueCapacity matches spec.md's decoded frame output queue
// size, deliberately small since the filter graph is expected to keep up.
const DefaultOutputQueueCapacity = 2

// Result is the sum-typed outcome of a non-blocking pull, mirroring the
// producer/decoder/filter poll contract used throughout spec.md.
type Result int

const (
	// ResultAgain means no frame is ready yet; try again later.
	ResultAgain Result = iota
	// ResultOk means a Frame was produced.
	ResultOk
	// ResultEOF means the decoder has flushed and will produce no more.
	ResultEOF
)

// PullResult carries a Result plus the Frame when Result is ResultOk.
type PullResult struct {
	Status Result
	Frame  *media.Frame
}
