package media

// DrawFrame is the opaque handle the producer hands to the downstream
// compositor. Its construction and consumption are out of scope for this
// module; the producer only needs to move it around and keep one "still"
// copy alive across ticks.
type DrawFrame interface{}

// CompositeFrame is the concrete DrawFrame a producer attaches to an
// OutputFrame: the first (or only, for progressive output) filtered video
// frame, an optional second field paired with it for interlaced output, and
// the audio samples paced to the same output tick. Whichever of these a
// downstream compositor actually consumes, it owns releasing it.
type CompositeFrame struct {
	Video  *Frame
	Second *Frame // nil unless this tick pairs two fields
	Audio  *Frame // nil for a tick with no audio graph or a dry cadence pull
}

// OutputFrame is a composite carrying the compositor's draw-frame handle
// plus PTS/duration in the global time base (TimeBaseQ, i.e. AV_TIME_BASE
// units). The producer's output buffer is an ordered FIFO of these.
type OutputFrame struct {
	Draw     DrawFrame
	PTS      int64
	Duration int64
}

// PullStatus distinguishes why a non-blocking pull from the producer's
// output buffer returned what it did.
type PullStatus int

const (
	// PullOk: a frame was ready and is returned.
	PullOk PullStatus = iota
	// PullLate: the pipeline hasn't produced a frame for this tick yet.
	// The caller should keep ticking its own clock (optionally repeating
	// the last frame via PrevFrame) and retry, rather than block waiting.
	PullLate
	// PullEOF: the stream has ended and looping is disabled; no further
	// frame will ever become available.
	PullEOF
)
