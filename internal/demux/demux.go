// Package demux implements the container demuxer: it opens a URL or path,
// exposes the stream inventory, and runs a background worker that reads
// packets into a bounded queue until a caller drains them.
package demux

import (
	"errors"
	"time"

	"playhead/internal/media"
)

// ErrNotAvailable is returned by every operation when the module was built
// without the avpipe build tag (no media-decoding library linked in).
var ErrNotAvailable = errors.New("demux: media library not compiled in (build with -tags avpipe)")

// ErrOpenFailed wraps a fatal container/stream open failure.
var ErrOpenFailed = errors.New("demux: open failed")

// DefaultQueueCapacity is the demuxer's own packet output queue size. It
// holds packets for every stream, undispatched, in container order.
const DefaultQueueCapacity = 512

// DefaultReadWriteTimeout is the I/O timeout applied to network inputs.
const DefaultReadWriteTimeout = 5 * time.Second

// Options configures a Demuxer.
type Options struct {
	URL              string
	QueueCapacity    int
	ReadWriteTimeout time.Duration
	Reconnect        bool
}

func (o *Options) setDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.ReadWriteTimeout <= 0 {
		o.ReadWriteTimeout = DefaultReadWriteTimeout
	}
}

// IsNetwork reports whether url names a network resource (contains "://"),
// the condition spec.md uses to decide whether to enable reconnect and a
// read/write timeout.
func IsNetwork(url string) bool {
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			return true
		}
	}
	return false
}

// EOSStreamIndex is the sentinel StreamIndex on a packet the worker pushes
// to signal file-level end of stream; the caller draining the queue is
// responsible for fanning this out into a per-stream EOS packet for every
// decoder, since the demuxer's single output queue does not know which
// decoders exist.
const EOSStreamIndex = -1

// GlobalEOS returns the sentinel packet pushed once av_read_frame reports
// EOF.
func GlobalEOS() *media.Packet {
	return media.EOSPacket(EOSStreamIndex)
}
