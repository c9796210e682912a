package demux

import "testing"

func TestIsNetworkRecognizesScheme(t *testing.T) {
	cases := map[string]bool{
		"rtmp://host/app/stream": true,
		"udp://239.0.0.1:1234":   true,
		"/local/path/file.mp4":   false,
		"file.mp4":               false,
		"":                       false,
	}
	for url, want := range cases {
		if got := IsNetwork(url); got != want {
			t.Errorf("IsNetwork(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestOptionsSetDefaults(t *testing.T) {
	var o Options
	o.setDefaults()
	if o.QueueCapacity != DefaultQueueCapacity {
		t.Errorf("QueueCapacity = %d, want %d", o.QueueCapacity, DefaultQueueCapacity)
	}
	if o.ReadWriteTimeout != DefaultReadWriteTimeout {
		t.Errorf("ReadWriteTimeout = %v, want %v", o.ReadWriteTimeout, DefaultReadWriteTimeout)
	}

	o = Options{QueueCapacity: 7, ReadWriteTimeout: 1}
	o.setDefaults()
	if o.QueueCapacity != 7 {
		t.Errorf("explicit QueueCapacity overwritten: got %d, want 7", o.QueueCapacity)
	}
}

func TestGlobalEOSCarriesSentinelStreamIndex(t *testing.T) {
	p := GlobalEOS()
	if !p.IsEOS() {
		t.Fatal("GlobalEOS() should report IsEOS")
	}
	if p.StreamIndex != EOSStreamIndex {
		t.Fatalf("StreamIndex = %d, want %d", p.StreamIndex, EOSStreamIndex)
	}
}
