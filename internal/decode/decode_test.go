package decode

import (
	"errors"
	"testing"

	"playhead/internal/media"
)

func TestOpenWithoutAvpipeTagFailsExplicitly(t *testing.T) {
	// Without the avpipe build tag there is no codec library linked in;
	// Open must fail loudly with ErrNotAvailable rather than returning a
	// Decoder that silently drops every packet.
	d, err := Open(media.StreamDescriptor{Kind: media.KindVideo}, nil)
	if d != nil {
		t.Fatalf("Open() returned a non-nil Decoder in the stub build")
	}
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("Open() error = %v, want ErrNotAvailable", err)
	}
}

func TestStubDecoderPollReportsEOF(t *testing.T) {
	var d *Decoder
	if r := d.Poll(); r.Status != ResultEOF {
		t.Fatalf("stub Decoder.Poll() = %+v, want ResultEOF", r)
	}
	if d.TryPush(nil) {
		t.Fatal("stub Decoder.TryPush should always report false")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("stub Decoder.Close() = %v, want nil", err)
	}
}
