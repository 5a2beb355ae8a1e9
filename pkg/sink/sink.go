// Package sink delivers finalized drowsiness events to their destinations.
//
// Sinks never retry. A failed Emit is reported to the caller, which logs
// and counts it; monitoring state is not rolled back.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/roadguard/go-roadguard/pkg/trip"
)

// Sink receives finalized events.
type Sink interface {
	Emit(ctx context.Context, ev trip.Event) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, ev trip.Event) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, ev trip.Event) error {
	return f(ctx, ev)
}

// Named is implemented by sinks that want a label in logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the sink's name, or its type.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Multi fans an event out to several sinks. Every sink is tried; the
// errors are joined.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, ev trip.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

// Name implements Named.
func (m Multi) Name() string {
	return "multi"
}

// Store writes events into a trip store.
type Store struct {
	store trip.Store
}

// NewStore creates a store-backed sink.
func NewStore(s trip.Store) *Store {
	return &Store{store: s}
}

// Emit implements Sink.
func (s *Store) Emit(ctx context.Context, ev trip.Event) error {
	return s.store.AddEvent(ctx, &ev)
}

// Name implements Named.
func (s *Store) Name() string {
	return "store"
}
