//go:build avpipe

package filter

import (
	"reflect"
	"strings"
	"testing"

	"playhead/internal/media"
)

func TestCountUnboundInputsSingleChain(t *testing.T) {
	got := countUnboundInputs("[in0]null[user0]")
	want := []string{"in0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("countUnboundInputs = %v, want %v", got, want)
	}
}

func TestCountUnboundInputsIgnoresProducedLabels(t *testing.T) {
	// "mid" is produced by the first chain and consumed by the second, so
	// only "in0" is left dangling.
	got := countUnboundInputs("[in0]scale=100:100[mid];[mid]hflip[out]")
	want := []string{"in0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("countUnboundInputs = %v, want %v", got, want)
	}
}

func TestCountUnboundInputsSortsMultiplePads(t *testing.T) {
	got := countUnboundInputs("[in1][in0]hstack[out]")
	want := []string{"in0", "in1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("countUnboundInputs = %v, want %v", got, want)
	}
}

func TestBuildVideoChainEmptySpecDefaultsToPassthrough(t *testing.T) {
	body, labels := buildVideoChain(VideoSpec{FrameRate: media.Rational{Num: 25, Den: 1}}, 1)
	if !reflect.DeepEqual(labels, []string{"in0"}) {
		t.Fatalf("labels = %v, want [in0]", labels)
	}
	if !containsAll(body, "[in0]null[user0]", "bwdif=", "fps=fps=25/1") {
		t.Fatalf("body = %q missing expected fragments", body)
	}
}

func TestBuildVideoChainFieldCountDoublesFPS(t *testing.T) {
	body, _ := buildVideoChain(VideoSpec{FrameRate: media.Rational{Num: 25, Den: 1}, FieldCount: 2, Interlaced: true}, 1)
	if !containsAll(body, "fps=fps=50/1", "deint=1") {
		t.Fatalf("body = %q, want fps doubled and deint enabled", body)
	}
}

func TestBuildVideoChainMergesTwoRawInputsIntoOneDanglingPad(t *testing.T) {
	spec := VideoSpec{FrameRate: media.Rational{Num: 25, Den: 1}, Spec: "[merged]null[user0]"}
	body, labels := buildVideoChain(spec, 2)
	if !reflect.DeepEqual(labels, []string{"in0", "in1"}) {
		t.Fatalf("labels = %v, want [in0 in1]", labels)
	}
	if !containsAll(body, "[in0][in1]alphamerge[merged]") {
		t.Fatalf("body = %q, want an alphamerge stage feeding the dangling pad", body)
	}
}

func TestBuildAudioChainEmptySpecDefaultsToPassthrough(t *testing.T) {
	body, labels := buildAudioChain(AudioSpec{SampleRate: 48000, Channels: 2}, 1)
	if !reflect.DeepEqual(labels, []string{"in0"}) {
		t.Fatalf("labels = %v, want [in0]", labels)
	}
	if !containsAll(body, "[in0]anull[user0]", "aresample=sample_rate=48000", "channel_layouts=stereo") {
		t.Fatalf("body = %q missing expected fragments", body)
	}
}

func TestBuildAudioChainMergesMultipleRawInputs(t *testing.T) {
	spec := AudioSpec{SampleRate: 48000, Channels: 2, Spec: "[merged]anull[user0]"}
	body, labels := buildAudioChain(spec, 3)
	if !reflect.DeepEqual(labels, []string{"in0", "in1", "in2"}) {
		t.Fatalf("labels = %v, want [in0 in1 in2]", labels)
	}
	if !containsAll(body, "[in0][in1][in2]amerge=inputs=3[merged]") {
		t.Fatalf("body = %q, want an amerge stage folding all three inputs", body)
	}
}

func TestChannelLayoutName(t *testing.T) {
	cases := map[int]string{1: "mono", 2: "stereo", 6: "6c"}
	for channels, want := range cases {
		if got := channelLayoutName(channels); got != want {
			t.Fatalf("channelLayoutName(%d) = %q, want %q", channels, got, want)
		}
	}
}

func TestInputIndex(t *testing.T) {
	idx, ok := inputIndex("in3")
	if !ok || idx != 3 {
		t.Fatalf("inputIndex(in3) = (%d, %v), want (3, true)", idx, ok)
	}
	if _, ok := inputIndex("out"); ok {
		t.Fatal("inputIndex(out) should report ok=false")
	}
}

func TestLastOutputLabel(t *testing.T) {
	if got := lastOutputLabel("[in0]scale=1:1[mid];[mid]hflip[out]"); got != "out" {
		t.Fatalf("lastOutputLabel = %q, want out", got)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
