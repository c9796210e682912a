package media

import "sync"

// Frame is a decoded media unit, tagged with the time base of the stream
// that produced it. Exactly one of the video or audio field sets is
// meaningful, selected by Kind.
type Frame struct {
	Kind     Kind
	TimeBase Rational
	PTS      int64
	Duration int64

	// Video fields.
	PixelFormat string
	Width       int
	Height      int
	LineSize    [8]int
	Data        [8][]byte

	// Audio fields.
	SampleFormat  string
	SampleRate    int
	ChannelLayout string
	Channels      int
	NumSamples    int
	Planar        bool
	AudioData     [8][]byte

	release     func()
	releaseOnce sync.Once
}

// Release frees native resources (the underlying AVFrame in a real build)
// exactly once. Safe to call on nil.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// SetRelease attaches (or replaces) the native-resource release callback.
// Used by the decode/filter backends once they've filled in a frame that
// was constructed before its backing AVFrame was known.
func (f *Frame) SetRelease(release func()) {
	f.release = release
}

// CopyPlanesInto packs the frame's planes into dst, a single contiguous
// buffer using dstStride bytes per row instead of the source LineSize,
// which may exceed the tightly-packed row width. This is the "conversion
// into the downstream compositor" copy spec.md's Frame/Packet primitives
// section requires.
func (f *Frame) CopyPlanesInto(dst []byte, dstStride int, planeHeights [8]int) {
	offset := 0
	planes := f.Data
	if f.Kind == KindAudio {
		planes = f.AudioData
	}
	for i, plane := range planes {
		if plane == nil {
			continue
		}
		rowBytes := dstStride
		srcStride := f.LineSize[i]
		if srcStride == 0 || srcStride < rowBytes {
			rowBytes = srcStride
		}
		h := planeHeights[i]
		for row := 0; row < h; row++ {
			srcStart := row * srcStride
			srcEnd := srcStart + rowBytes
			if srcEnd > len(plane) {
				break
			}
			n := copy(dst[offset:], plane[srcStart:srcEnd])
			offset += n
		}
	}
}
