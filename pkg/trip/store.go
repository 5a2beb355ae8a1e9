package trip

import (
	"context"
	"time"
)

// Store defines the interface for trip storage operations.
type Store interface {
	// StartTrip opens a new trip starting at start
	StartTrip(ctx context.Context, start time.Time) (*Trip, error)

	// EndTrip sets the end time of an open trip
	EndTrip(ctx context.Context, id string, end time.Time) (*Trip, error)

	// AddEvent records an event on its trip and assigns its ID
	AddEvent(ctx context.Context, ev *Event) error

	// LatestTrip returns the trip with the latest start time, with events
	LatestTrip(ctx context.Context) (*Trip, error)

	// ListTrips returns all trips, newest first, with events
	ListTrips(ctx context.Context) ([]*Trip, error)

	// Close releases the store
	Close() error
}
