// Package metrics exposes monitor and sink counters to Prometheus.
//
// All methods are safe on a nil *Metrics, so components can take an
// optional collector without nil checks at every call site.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roadguard"

// Metrics holds all application metrics
type Metrics struct {
	// Frame pipeline counters
	FramesCaptured  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64
	FacesDetected   atomic.Uint64

	// Last eye aspect ratio as float64 bits; NaN when there was no signal
	earBits atomic.Uint64

	extractSeconds prometheus.Histogram
	transitions    *prometheus.CounterVec
	events         *prometheus.CounterVec
	sinkFailures   *prometheus.CounterVec
	snapshots      *prometheus.CounterVec
	wsClients      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}
	m.earBits.Store(math.Float64bits(math.NaN()))

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.registerFrameGauges()

	f := promauto.With(reg)
	m.extractSeconds = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extract_duration_seconds",
		Help:      "Time spent extracting signals from one frame",
		Buckets:   []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.2, 0.5, 1},
	})
	m.transitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "latch_transitions_total",
		Help:      "Latch transitions, by condition and kind",
	}, []string{"condition", "kind"})
	m.events = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Finalized events handed to sinks, by condition and severity",
	}, []string{"condition", "severity"})
	m.sinkFailures = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_failures_total",
		Help:      "Events a sink failed to accept",
	}, []string{"sink"})
	m.snapshots = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Evidence snapshot uploads, by result",
	}, []string{"result"})
	m.wsClients = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected dashboard websocket clients",
	})

	return m
}

func (m *Metrics) registerFrameGauges() {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"frames_captured_total", "Frames read from the camera", func() float64 { return float64(m.FramesCaptured.Load()) }},
		{"frames_processed_total", "Frames run through the pipeline", func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"frames_dropped_total", "Frames overwritten before the consumer took them", func() float64 { return float64(m.FramesDropped.Load()) }},
		{"faces_detected_total", "Processed frames with a face", func() float64 { return float64(m.FacesDetected.Load()) }},
		{"eye_aspect_ratio", "Most recent eye aspect ratio (NaN without a signal)", func() float64 { return math.Float64frombits(m.earBits.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// FrameCaptured counts a frame read from the source.
func (m *Metrics) FrameCaptured() {
	if m == nil {
		return
	}
	m.FramesCaptured.Add(1)
}

// FrameDropped counts a frame replaced in the slot before consumption.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Add(1)
}

// FrameProcessed records one pipeline pass.
func (m *Metrics) FrameProcessed(took time.Duration, face bool, ear *float64) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(1)
	if face {
		m.FacesDetected.Add(1)
	}
	v := math.NaN()
	if ear != nil {
		v = *ear
	}
	m.earBits.Store(math.Float64bits(v))
	m.extractSeconds.Observe(took.Seconds())
}

// Transition counts a latch transition.
func (m *Metrics) Transition(condition, kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(condition, kind).Inc()
}

// EventEmitted counts an event handed to the sinks.
func (m *Metrics) EventEmitted(condition, severity string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(condition, severity).Inc()
}

// SinkFailed counts a sink error.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// Snapshot counts a snapshot upload attempt.
func (m *Metrics) Snapshot(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.snapshots.WithLabelValues(result).Inc()
}

// ClientsChanged sets the websocket client gauge.
func (m *Metrics) ClientsChanged(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
