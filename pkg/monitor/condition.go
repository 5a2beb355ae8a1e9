package monitor

import (
	"time"

	"github.com/roadguard/go-roadguard/pkg/extract"
)

// Condition names
const (
	FacePresent = "face_present"
	EyesClosed  = "eyes_closed"
)

// Condition is one monitored predicate over the per-frame signal, with
// its own latch settings.
type Condition struct {
	Name      string
	Threshold time.Duration
	// Inclusive reports ThresholdExceeded at exactly Threshold.
	Inclusive bool
	// Emit turns finished occurrences that crossed the threshold into
	// events. Report-only conditions still drive logs and the dashboard.
	Emit bool
	// Active decides the condition for one frame.
	Active func(extract.Signal) bool
}

// FacePresence is active while a face is detected.
func FacePresence(threshold time.Duration) Condition {
	return Condition{
		Name:      FacePresent,
		Threshold: threshold,
		Active: func(s extract.Signal) bool {
			return s.Face != nil
		},
	}
}

// EyeClosure is active while the eye aspect ratio is below earThreshold.
// A frame without an EAR (no face, degenerate landmarks) counts as eyes
// open.
func EyeClosure(earThreshold float64, threshold time.Duration) Condition {
	return Condition{
		Name:      EyesClosed,
		Threshold: threshold,
		Inclusive: true,
		Emit:      true,
		Active: func(s extract.Signal) bool {
			v, ok := s.EAR()
			if !ok {
				return false
			}
			return v < earThreshold
		},
	}
}

// DefaultConditions returns face presence (3s) and eye closure
// (EAR < 0.29 for 2s).
func DefaultConditions() []Condition {
	return []Condition{
		FacePresence(3 * time.Second),
		EyeClosure(0.29, 2*time.Second),
	}
}
