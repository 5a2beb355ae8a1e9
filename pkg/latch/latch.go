// Package latch turns a per-frame boolean signal into stable occurrence
// transitions: started, sustained, threshold exceeded, ended.
//
// A Latch is level-triggered. One inactive sample ends the occurrence
// immediately; there is no minimum-run-length filtering of the raw signal.
// Each monitored condition owns its own Latch.
package latch

import (
	"fmt"
	"time"
)

// Kind identifies what changed on an Update.
type Kind int

const (
	// NoChange means the condition stayed inactive.
	NoChange Kind = iota
	// Started means the condition became active on this sample.
	Started
	// Sustained means the condition is still active and below the threshold.
	Sustained
	// ThresholdExceeded means the condition has been active past the threshold.
	ThresholdExceeded
	// Ended means the condition became inactive on this sample.
	Ended
)

// String returns the snake_case name used in logs and JSON.
func (k Kind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case Started:
		return "started"
	case Sustained:
		return "sustained"
	case ThresholdExceeded:
		return "threshold_exceeded"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind appear as a string in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := NoChange; c <= Ended; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("latch: unknown kind %q", text)
}

// Transition is the result of one Update. It is not stored.
type Transition struct {
	Kind Kind
	// Duration is set for Sustained and ThresholdExceeded. For Ended it
	// holds the duration of the finished occurrence as of its last active
	// sample.
	Duration time.Duration
}

// String formats the transition for logs.
func (t Transition) String() string {
	switch t.Kind {
	case Sustained, ThresholdExceeded, Ended:
		return fmt.Sprintf("%s(%.2fs)", t.Kind, t.Duration.Seconds())
	default:
		return t.Kind.String()
	}
}

// Sample is one observation of a condition, produced once per frame.
type Sample struct {
	Timestamp time.Time
	Active    bool
	// Magnitude is the continuous signal behind Active, when there is one
	// (the eye aspect ratio for eye closure).
	Magnitude *float64
}

// State is a snapshot of a latch. StartedAt is zero iff Active is false.
type State struct {
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
}

// Config parameterizes a latch.
type Config struct {
	// Name is the condition name, e.g. "eyes_closed".
	Name string
	// Threshold is how long the condition must be active before
	// ThresholdExceeded is reported.
	Threshold time.Duration
	// Inclusive switches the threshold comparison from > to >=.
	Inclusive bool
}

// Latch is the temporal state machine for one condition.
// It is not safe for concurrent use; the consumer loop owns it.
type Latch struct {
	cfg   Config
	state State
}

// New creates a latch in the inactive state.
func New(cfg Config) *Latch {
	return &Latch{cfg: cfg}
}

// Name returns the condition name.
func (l *Latch) Name() string {
	return l.cfg.Name
}

// Threshold returns the configured threshold.
func (l *Latch) Threshold() time.Duration {
	return l.cfg.Threshold
}

// State returns a copy of the current state.
func (l *Latch) State() State {
	return l.state
}

// Observe is Update for a Sample.
func (l *Latch) Observe(s Sample) Transition {
	return l.Update(s.Timestamp, s.Active)
}

// Update feeds one sample and returns the resulting transition.
func (l *Latch) Update(now time.Time, activeNow bool) Transition {
	switch {
	case activeNow && !l.state.Active:
		l.state = State{Active: true, StartedAt: now, LastSeen: now}
		return Transition{Kind: Started}

	case activeNow:
		l.state.LastSeen = now
		d := l.since(now)
		if l.exceeded(d) {
			return Transition{Kind: ThresholdExceeded, Duration: d}
		}
		return Transition{Kind: Sustained, Duration: d}

	case l.state.Active:
		d := l.since(l.state.LastSeen)
		l.state = State{}
		return Transition{Kind: Ended, Duration: d}

	default:
		return Transition{Kind: NoChange}
	}
}

// Duration returns how long the current occurrence has lasted at now,
// or zero when inactive.
func (l *Latch) Duration(now time.Time) time.Duration {
	if !l.state.Active {
		return 0
	}
	return l.since(now)
}

// Reset forces the latch back to inactive without emitting anything.
func (l *Latch) Reset() {
	l.state = State{}
}

func (l *Latch) since(now time.Time) time.Duration {
	d := now.Sub(l.state.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Latch) exceeded(d time.Duration) bool {
	if l.cfg.Inclusive {
		return d >= l.cfg.Threshold
	}
	return d > l.cfg.Threshold
}
