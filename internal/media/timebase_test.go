package media

import "testing"

func TestRescaleQIdentity(t *testing.T) {
	tb := Rational{Num: 1, Den: 90000}
	if got := RescaleQ(90000, tb, tb); got != 90000 {
		t.Fatalf("got %d, want 90000", got)
	}
}

func TestRescaleQToMicroseconds(t *testing.T) {
	tb := Rational{Num: 1, Den: 1000}
	got := RescaleQ(1500, tb, TimeBaseQ)
	if got != 1500000 {
		t.Fatalf("got %d, want 1500000", got)
	}
}

func TestRescaleQRoundsToNearest(t *testing.T) {
	from := Rational{Num: 1, Den: 3}
	to := Rational{Num: 1, Den: 1}
	// 1/3 second, rescaled to whole seconds, rounds to 0.
	if got := RescaleQ(1, from, to); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	// 2/3 second rounds to 1.
	if got := RescaleQ(2, from, to); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestRationalInvert(t *testing.T) {
	r := Rational{Num: 30000, Den: 1001}
	inv := r.Invert()
	if inv.Num != 1001 || inv.Den != 30000 {
		t.Fatalf("got %+v, want {1001 30000}", inv)
	}
}

func TestStreamDescriptorEffectiveStartTime(t *testing.T) {
	sd := StreamDescriptor{StartTime: NoPTS}
	if got := sd.EffectiveStartTime(); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}

	sd.StartTime = 12345
	if got := sd.EffectiveStartTime(); got != 12345 {
		t.Fatalf("got %d, want 12345", got)
	}
}
