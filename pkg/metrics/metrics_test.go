package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.FrameCaptured()
	m.FrameDropped()
	m.FrameProcessed(time.Millisecond, true, nil)
	m.Transition("eyes_closed", "started")
	m.EventEmitted("eyes_closed", "high")
	m.SinkFailed("http")
	m.Snapshot(false)
	m.ClientsChanged(3)
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	ear := 0.21
	m.FrameCaptured()
	m.FrameCaptured()
	m.FrameDropped()
	m.FrameProcessed(20*time.Millisecond, true, &ear)
	m.Transition("eyes_closed", "threshold_exceeded")
	m.Transition("eyes_closed", "threshold_exceeded")
	m.SinkFailed("amqp")

	if got := m.FramesCaptured.Load(); got != 2 {
		t.Errorf("captured = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("eyes_closed", "threshold_exceeded")); got != 2 {
		t.Errorf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sinkFailures.WithLabelValues("amqp")); got != 1 {
		t.Errorf("sink failures = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	ear := 0.3
	m.FrameProcessed(time.Millisecond, true, &ear)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		"roadguard_frames_processed_total 1",
		"roadguard_eye_aspect_ratio 0.3",
		"roadguard_extract_duration_seconds_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
