package monitor

import (
	"time"

	"github.com/roadguard/go-roadguard/pkg/trip"
)

// SeverityPolicy grades a finished occurrence by its duration.
type SeverityPolicy func(d time.Duration) trip.Severity

// ThresholdSeverity maps durations to severities by two cut-offs.
type ThresholdSeverity struct {
	Medium time.Duration
	High   time.Duration
}

// DefaultThresholdSeverity grades eye closures: under 3s low, under 5s
// medium, otherwise high.
var DefaultThresholdSeverity = ThresholdSeverity{Medium: 3 * time.Second, High: 5 * time.Second}

// Severity implements SeverityPolicy.
func (t ThresholdSeverity) Severity(d time.Duration) trip.Severity {
	switch {
	case d >= t.High:
		return trip.SeverityHigh
	case d >= t.Medium:
		return trip.SeverityMedium
	default:
		return trip.SeverityLow
	}
}
