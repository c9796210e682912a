//go:build avpipe

package demux

import (
	"testing"

	"github.com/asticode/go-astiav"
)

func TestIsRTMP(t *testing.T) {
	cases := map[string]bool{
		"rtmp://host/app/stream":  true,
		"rtmps://host/app/stream": true,
		"rtsp://host/stream":      false,
		"udp://239.0.0.1:1234":    false,
		"/local/path/file.mp4":    false,
	}
	for url, want := range cases {
		if got := isRTMP(url); got != want {
			t.Errorf("isRTMP(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestErrorsIsEOF(t *testing.T) {
	if !errors_isEOF(astiav.ErrEof) {
		t.Fatal("errors_isEOF(astiav.ErrEof) should be true")
	}
	if errors_isEOF(astiav.ErrEagain) {
		t.Fatal("errors_isEOF(astiav.ErrEagain) should be false")
	}
}
