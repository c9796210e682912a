// Package diag exposes the producer's runtime health as Prometheus
// metrics and astikit-style rolling statistics: output buffer depth,
// per-stream decoder queue depth, underflow events, and dropped frames.
package diag

import (
	"github.com/asticode/go-astikit"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the full set of counters/gauges one Producer registers.
type Metrics struct {
	OutputBufferDepth prometheus.Gauge
	DecoderQueueDepth *prometheus.GaugeVec
	Underflows        prometheus.Counter
	DroppedFrames     *prometheus.CounterVec

	underflow *astikit.DurationPercentageStat
	frameRate *astikit.CounterAvgStat
}

// NewMetrics creates a Metrics set scoped by sessionID (e.g. a UUID) so
// multiple concurrently open producers don't collide on label values,
// and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer, sessionID string) *Metrics {
	labels := prometheus.Labels{"session": sessionID}

	m := &Metrics{
		OutputBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "playhead",
			Name:        "output_buffer_depth",
			Help:        "Number of OutputFrames currently buffered awaiting consumption.",
			ConstLabels: labels,
		}),
		DecoderQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "playhead",
			Name:        "decoder_queue_depth",
			Help:        "Number of packets currently queued per decoder.",
			ConstLabels: labels,
		}, []string{"stream"}),
		Underflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "playhead",
			Name:        "output_underflows_total",
			Help:        "Times the output buffer was empty when a frame was requested.",
			ConstLabels: labels,
		}),
		DroppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "playhead",
			Name:        "dropped_frames_total",
			Help:        "Frames dropped because a queue was full and back-pressure would have stalled the pipeline.",
			ConstLabels: labels,
		}, []string{"stage"}),
		underflow: astikit.NewDurationPercentageStat(),
		frameRate: astikit.NewCounterAvgStat(),
	}

	reg.MustRegister(m.OutputBufferDepth, m.DecoderQueueDepth, m.Underflows, m.DroppedFrames)
	return m
}

// RecordFrame marks that one OutputFrame was produced, feeding the
// rolling frames-per-second stat alongside the Prometheus counters.
func (m *Metrics) RecordFrame() {
	m.frameRate.Add(1)
}

// RecordUnderflow marks the output buffer being empty when a frame was
// requested, bumping both the Prometheus counter and the rolling
// underflow-percentage stat used by an in-process diagnostics UI.
func (m *Metrics) RecordUnderflow() {
	m.underflow.Begin()
	m.underflow.End()
	m.Underflows.Inc()
}

// Stats exposes the rolling astikit stats for wiring into a Stater-based
// diagnostics surface, mirroring how a filterer node registers its own.
func (m *Metrics) Stats() (frameRate *astikit.CounterAvgStat, underflow *astikit.DurationPercentageStat) {
	return m.frameRate, m.underflow
}
