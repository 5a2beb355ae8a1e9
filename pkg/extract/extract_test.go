package extract

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/ear"
	"gocv.io/x/gocv"
)

type fakeDetector struct {
	dets     []detection.Detection
	err      error
	channels int
	calls    int
}

func (f *fakeDetector) Detect(frame gocv.Mat) ([]detection.Detection, error) {
	f.calls++
	f.channels = frame.Channels()
	return f.dets, f.err
}

func (f *fakeDetector) Close() error { return nil }

type fakeLocalizer struct {
	pts []ear.Point
	err error
	box image.Rectangle
}

func (f *fakeLocalizer) Locate(_ gocv.Mat, box image.Rectangle) ([]ear.Point, error) {
	f.box = box
	return f.pts, f.err
}

func (f *fakeLocalizer) Close() error { return nil }

func frame(t *testing.T, typ gocv.MatType) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(120, 160, typ)
	t.Cleanup(func() { m.Close() })
	return m
}

// landmarks builds a 68-point set with both eyes at the given ratio.
func landmarks(ratio float64) []ear.Point {
	half := ratio / 2
	eye := func(x0 float64) []ear.Point {
		return []ear.Point{
			{X: x0, Y: 50}, {X: x0 + 3, Y: 50 - half*10}, {X: x0 + 7, Y: 50 - half*10},
			{X: x0 + 10, Y: 50}, {X: x0 + 7, Y: 50 + half*10}, {X: x0 + 3, Y: 50 + half*10},
		}
	}
	pts := make([]ear.Point, 68)
	copy(pts[ear.RightEyeStart:], eye(40))
	copy(pts[ear.LeftEyeStart:], eye(80))
	return pts
}

func TestPresence_FirstMatch(t *testing.T) {
	det := &fakeDetector{dets: []detection.Detection{
		{Box: image.Rect(0, 0, 10, 10), Confidence: 0.3},
		{Box: image.Rect(20, 20, 60, 60), Confidence: 0.8},
		{Box: image.Rect(0, 0, 100, 100), Confidence: 0.99},
	}}
	p := NewPresence(det, "", DefaultMinConfidence)

	face, ok := p.Detect(frame(t, gocv.MatTypeCV8UC3))
	if !ok {
		t.Fatal("expected a face")
	}
	if face.Box != image.Rect(20, 20, 60, 60) {
		t.Errorf("selected %v, want the first candidate over 0.5", face.Box)
	}
}

func TestPresence_NoFace(t *testing.T) {
	tests := []struct {
		name string
		det  *fakeDetector
	}{
		{"no candidates", &fakeDetector{}},
		{"all below threshold", &fakeDetector{dets: []detection.Detection{{Confidence: 0.5}}}},
		{"detector error", &fakeDetector{err: errors.New("inference failed")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := NewPresence(tc.det, detection.PolicyFirst, 0.5).Detect(frame(t, gocv.MatTypeCV8UC3)); ok {
				t.Error("expected no face")
			}
		})
	}
}

func TestPresence_EmptyFrame(t *testing.T) {
	det := &fakeDetector{}
	empty := gocv.NewMat()
	defer empty.Close()

	if _, ok := NewPresence(det, "", 0.5).Detect(empty); ok {
		t.Error("expected no face for empty frame")
	}
	if det.calls != 0 {
		t.Error("detector should not run on an empty frame")
	}
}

func TestPresence_NormalizesChannels(t *testing.T) {
	for _, typ := range []gocv.MatType{gocv.MatTypeCV8UC4, gocv.MatTypeCV8UC1} {
		det := &fakeDetector{}
		src := frame(t, typ)
		NewPresence(det, "", 0.5).Detect(src)

		if det.channels != 3 {
			t.Errorf("detector saw %d channels, want 3", det.channels)
		}
		if src.Channels() == 3 {
			t.Error("caller's frame must not be modified")
		}
	}
}

func TestEyeAspect_Measure(t *testing.T) {
	face := detection.Detection{Box: image.Rect(30, 30, 110, 110), Confidence: 0.9}
	loc := &fakeLocalizer{pts: landmarks(0.25)}
	e := NewEyeAspect(NewPresence(&fakeDetector{dets: []detection.Detection{face}}, "", 0.5), loc)

	m, ok := e.Measure(frame(t, gocv.MatTypeCV8UC3))
	if !ok {
		t.Fatal("expected a measurement")
	}
	if loc.box != face.Box {
		t.Errorf("localizer anchored to %v, want the full face box %v", loc.box, face.Box)
	}
	if math.Abs(m.Eyes.EAR-0.25) > 1e-9 {
		t.Errorf("EAR = %v, want 0.25", m.Eyes.EAR)
	}
}

func TestEyeAspect_NoSignal(t *testing.T) {
	face := detection.Detection{Box: image.Rect(0, 0, 50, 50), Confidence: 0.9}
	flat := make([]ear.Point, 68) // every point at the origin

	tests := []struct {
		name string
		det  *fakeDetector
		loc  *fakeLocalizer
	}{
		{"no face", &fakeDetector{}, &fakeLocalizer{pts: landmarks(0.3)}},
		{"localizer error", &fakeDetector{dets: []detection.Detection{face}}, &fakeLocalizer{err: errors.New("bad crop")}},
		{"degenerate eyes", &fakeDetector{dets: []detection.Detection{face}}, &fakeLocalizer{pts: flat}},
		{"too few landmarks", &fakeDetector{dets: []detection.Detection{face}}, &fakeLocalizer{pts: landmarks(0.3)[:40]}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEyeAspect(NewPresence(tc.det, "", 0.5), tc.loc)
			if _, ok := e.Measure(frame(t, gocv.MatTypeCV8UC3)); ok {
				t.Error("expected no signal")
			}
		})
	}
}

func TestExtractor_Extract(t *testing.T) {
	face := detection.Detection{Box: image.Rect(0, 0, 50, 50), Confidence: 0.9}
	det := &fakeDetector{dets: []detection.Detection{face}}
	presence := NewPresence(det, "", 0.5)

	// Presence only
	sig := New(presence, nil).Extract(frame(t, gocv.MatTypeCV8UC3))
	if sig.Face == nil || sig.Eyes != nil {
		t.Errorf("presence-only signal = %+v", sig)
	}

	// Face found but eyes degenerate: face stays, EAR absent
	sig = New(presence, NewEyeAspect(presence, &fakeLocalizer{pts: make([]ear.Point, 68)})).Extract(frame(t, gocv.MatTypeCV8UC3))
	if sig.Face == nil {
		t.Error("face should be reported")
	}
	if _, ok := sig.EAR(); ok {
		t.Error("EAR should be absent")
	}

	// Full signal; detector runs once per frame
	det.calls = 0
	sig = New(presence, NewEyeAspect(presence, &fakeLocalizer{pts: landmarks(0.2)})).Extract(frame(t, gocv.MatTypeCV8UC3))
	if v, ok := sig.EAR(); !ok || math.Abs(v-0.2) > 1e-9 {
		t.Errorf("EAR = %v, %v", v, ok)
	}
	if det.calls != 1 {
		t.Errorf("detector ran %d times, want 1", det.calls)
	}
}
