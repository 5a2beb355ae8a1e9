package monitor

import (
	"image"
	"testing"
	"time"

	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/ear"
	"github.com/roadguard/go-roadguard/pkg/extract"
	"github.com/roadguard/go-roadguard/pkg/latch"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

var face = detection.Detection{Box: image.Rect(40, 30, 120, 110), Confidence: 0.9}

func withFace() extract.Signal {
	f := face
	return extract.Signal{Face: &f}
}

func withEAR(v float64) extract.Signal {
	s := withFace()
	s.Eyes = &ear.Result{Left: v, Right: v, LeftValid: true, RightValid: true, EAR: v}
	return s
}

func TestPipeline_EyeClosureScenario(t *testing.T) {
	p := NewPipeline(nil, []Condition{EyeClosure(0.29, 2*time.Second)})

	ears := []float64{0.35, 0.32, 0.20, 0.18, 0.15}
	want := []latch.Transition{
		{Kind: latch.NoChange},
		{Kind: latch.NoChange},
		{Kind: latch.Started},
		{Kind: latch.Sustained, Duration: time.Second},
		{Kind: latch.ThresholdExceeded, Duration: 2 * time.Second},
	}

	for i, v := range ears {
		r := p.Step(withEAR(v), at(float64(i)))
		c, ok := r.Condition(EyesClosed)
		if !ok {
			t.Fatalf("t=%d: no %s report", i, EyesClosed)
		}
		if c.Kind != want[i].Kind || c.Duration != want[i].Duration {
			t.Errorf("t=%d: got %v(%v), want %v", i, c.Kind, c.Duration, want[i])
		}
		if r.EAR == nil || *r.EAR != v {
			t.Errorf("t=%d: EAR not reported", i)
		}
	}
}

func TestPipeline_ExceededReportedOnce(t *testing.T) {
	p := NewPipeline(nil, []Condition{EyeClosure(0.29, time.Second)})

	var exceeded int
	for i := 0; i < 6; i++ {
		r := p.Step(withEAR(0.1), at(float64(i)))
		exceeded += len(r.Exceeded)
	}
	if exceeded != 1 {
		t.Errorf("exceeded reported %d times, want 1", exceeded)
	}
}

func TestPipeline_FinishedOccurrence(t *testing.T) {
	p := NewPipeline(nil, []Condition{EyeClosure(0.29, 2*time.Second)})

	p.Step(withEAR(0.1), at(1))
	p.Step(withEAR(0.1), at(2))
	p.Step(withEAR(0.1), at(3.5))
	r := p.Step(withEAR(0.4), at(4))

	if len(r.Finished) != 1 {
		t.Fatalf("finished = %d, want 1", len(r.Finished))
	}
	occ := r.Finished[0]
	if occ.Condition != EyesClosed || !occ.Emit {
		t.Errorf("unexpected occurrence %+v", occ)
	}
	if !occ.StartedAt.Equal(at(1)) {
		t.Errorf("started at %v, want %v", occ.StartedAt, at(1))
	}
	if occ.Duration != 2500*time.Millisecond {
		t.Errorf("duration %v, want 2.5s", occ.Duration)
	}
}

func TestPipeline_ShortOccurrenceNotFinished(t *testing.T) {
	p := NewPipeline(nil, []Condition{EyeClosure(0.29, 2*time.Second)})

	p.Step(withEAR(0.1), at(0))
	p.Step(withEAR(0.1), at(1))
	r := p.Step(withEAR(0.4), at(1.5))

	c, _ := r.Condition(EyesClosed)
	if c.Kind != latch.Ended {
		t.Errorf("got %v, want ended", c.Kind)
	}
	if len(r.Finished) != 0 {
		t.Errorf("short closure produced %d occurrences", len(r.Finished))
	}
}

// Losing the face ends both conditions; a missing EAR is not a closure.
func TestPipeline_FaceLost(t *testing.T) {
	p := NewPipeline(nil, nil)

	for i := 0; i < 4; i++ {
		p.Step(withEAR(0.1), at(float64(i)*0.1))
	}

	r := p.Step(extract.Signal{}, at(0.4))
	for _, name := range []string{FacePresent, EyesClosed} {
		c, _ := r.Condition(name)
		if c.Kind != latch.Ended {
			t.Errorf("%s: got %v, want ended", name, c.Kind)
		}
	}

	for i := 5; i < 9; i++ {
		r := p.Step(extract.Signal{}, at(float64(i)*0.1))
		for _, c := range r.Conditions {
			if c.Kind != latch.NoChange {
				t.Errorf("frame %d %s: got %v, want no_change", i, c.Name, c.Kind)
			}
		}
	}
}

func TestPipeline_Flush(t *testing.T) {
	p := NewPipeline(nil, nil)

	for i := 0; i <= 6; i++ {
		p.Step(withEAR(0.1), at(float64(i)))
	}

	occs := p.Flush()
	if len(occs) != 2 {
		t.Fatalf("flushed %d occurrences, want 2", len(occs))
	}
	for _, o := range occs {
		switch o.Condition {
		case FacePresent:
			if o.Emit {
				t.Error("face_present should not emit")
			}
		case EyesClosed:
			if !o.Emit || o.Duration != 6*time.Second {
				t.Errorf("eyes_closed: %+v", o)
			}
		default:
			t.Errorf("unexpected condition %q", o.Condition)
		}
	}

	for name, st := range p.States() {
		if st.Active {
			t.Errorf("%s still active after flush", name)
		}
	}
	if again := p.Flush(); len(again) != 0 {
		t.Errorf("second flush returned %d occurrences", len(again))
	}
}

func TestReport_Alerting(t *testing.T) {
	p := NewPipeline(nil, []Condition{FacePresence(time.Second)})
	p.Step(withFace(), at(0))
	if r := p.Step(withFace(), at(0.5)); len(r.Alerting()) != 0 {
		t.Errorf("alerting too early: %v", r.Alerting())
	}
	r := p.Step(withFace(), at(2))
	if got := r.Alerting(); len(got) != 1 || got[0] != FacePresent {
		t.Errorf("alerting = %v", got)
	}
}

func TestConditions_MissingEARIsInactive(t *testing.T) {
	c := EyeClosure(0.29, time.Second)
	if c.Active(withFace()) {
		t.Error("face without EAR counted as closed")
	}
	if !c.Active(withEAR(0.2)) {
		t.Error("EAR 0.2 should be closed")
	}
	if c.Active(withEAR(0.29)) {
		t.Error("EAR at the threshold should be open")
	}
}
