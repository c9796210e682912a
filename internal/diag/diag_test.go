package diag

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "session-a")

	m.RecordFrame()
	m.RecordUnderflow()
	m.OutputBufferDepth.Set(3)
	m.DecoderQueueDepth.WithLabelValues("0").Set(1)
	m.DroppedFrames.WithLabelValues("decode").Inc()

	if got := testutil.ToFloat64(m.Underflows); got != 1 {
		t.Fatalf("Underflows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OutputBufferDepth); got != 3 {
		t.Fatalf("OutputBufferDepth = %v, want 3", got)
	}

	count, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(count) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}

func TestMetricsScopedBySession(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetrics(reg, "session-a")
	// A second Metrics under a different session label must register
	// without colliding on the const-labeled collector's identity.
	b := NewMetrics(reg, "session-b")

	a.Underflows.Add(2)
	b.Underflows.Add(5)

	if got := testutil.ToFloat64(a.Underflows); got != 2 {
		t.Fatalf("session-a Underflows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(b.Underflows); got != 5 {
		t.Fatalf("session-b Underflows = %v, want 5", got)
	}
}

func TestStatsReturnsRollingStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "session-c")
	frameRate, underflow := m.Stats()
	if frameRate == nil || underflow == nil {
		t.Fatal("Stats returned a nil stat")
	}
}
