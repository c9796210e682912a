//go:build !avpipe

package decode

import "playhead/internal/media"

// Decoder is the stub decoder used when the module is built without the
// avpipe tag.
type Decoder struct{}

// Open always fails in the stub build.
func Open(desc media.StreamDescriptor, extraData []byte) (*Decoder, error) {
	return nil, ErrNotAvailable
}

func (d *Decoder) TryPush(pkt *media.Packet) bool { return false }
func (d *Decoder) Poll() PullResult               { return PullResult{Status: ResultEOF} }
func (d *Decoder) Flush()                         {}
func (d *Decoder) Close() error                   { return nil }
