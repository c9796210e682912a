//go:build !avpipe

package demux

import "playhead/internal/media"

// Demuxer is the stub demuxer used when the module is built without the
// avpipe tag. Every operation fails with ErrNotAvailable.
type Demuxer struct{}

// Open always fails in the stub build.
func Open(opts Options) (*Demuxer, error) {
	return nil, ErrNotAvailable
}

func (d *Demuxer) Streams() []media.StreamDescriptor { return nil }
func (d *Demuxer) Pause()                            {}
func (d *Demuxer) Resume()                           {}
func (d *Demuxer) EOF() bool                          { return true }
func (d *Demuxer) Paused() bool                       { return true }

func (d *Demuxer) Seek(ts int64, flush bool) error { return ErrNotAvailable }

func (d *Demuxer) Drain(sink func(*media.Packet) bool) {}

func (d *Demuxer) Close() error { return nil }
