// Package trip defines driving trips and the drowsiness events recorded
// during them, plus the stores that persist them.
package trip

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoTrips is returned by LatestTrip when nothing has been recorded.
	ErrNoTrips = errors.New("trip: no trips recorded yet")
	// ErrNotFound is returned for an unknown trip ID.
	ErrNotFound = errors.New("trip: not found")
	// ErrAlreadyEnded is returned when ending a trip twice.
	ErrAlreadyEnded = errors.New("trip: already ended")
	// ErrInvalidEvent is returned for an event that fails validation.
	ErrInvalidEvent = errors.New("trip: invalid event")
)

// Severity grades a drowsiness event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity validates a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToLower(s)); v {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidEvent, s)
	}
}

// Event is one finalized occurrence of a monitored condition.
type Event struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	// Duration is how long the condition lasted, in seconds.
	Duration    float64 `json:"duration"`
	Condition   string  `json:"condition,omitempty"`
	SnapshotKey string  `json:"snapshot_key,omitempty"`
}

// Validate checks the fields a store relies on.
func (e *Event) Validate() error {
	if e.TripID == "" {
		return fmt.Errorf("%w: trip_id is required", ErrInvalidEvent)
	}
	if e.ID != "" {
		if _, err := uuid.Parse(e.ID); err != nil {
			return fmt.Errorf("%w: id must be a UUID", ErrInvalidEvent)
		}
	}
	if _, err := ParseSeverity(string(e.Severity)); err != nil {
		return err
	}
	if e.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidEvent)
	}
	return nil
}

// Trip is one monitoring session.
type Trip struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Events    []Event    `json:"events"`
}

// Duration renders the trip length as "N mins" (whole minutes, truncated),
// or "In progress" while the trip has no end time.
func (t *Trip) Duration() string {
	if t.EndTime == nil {
		return "In progress"
	}
	mins := int(t.EndTime.Sub(t.StartTime).Minutes())
	return fmt.Sprintf("%d mins", mins)
}

// MarshalJSON adds the derived duration and never emits a null event list.
func (t Trip) MarshalJSON() ([]byte, error) {
	type plain Trip
	out := struct {
		plain
		Duration string `json:"duration"`
	}{plain: plain(t), Duration: t.Duration()}
	if out.Events == nil {
		out.Events = []Event{}
	}
	return json.Marshal(out)
}

// Clone returns a deep copy.
func (t *Trip) Clone() *Trip {
	c := *t
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	c.Events = append([]Event(nil), t.Events...)
	return &c
}
