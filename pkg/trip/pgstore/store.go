// Package pgstore is a PostgreSQL implementation of trip.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

//go:embed schema.sql
var schema string

// Store persists trips and events with a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and creates the schema if needed.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// StartTrip implements trip.Store.
func (s *Store) StartTrip(ctx context.Context, start time.Time) (*trip.Trip, error) {
	t := &trip.Trip{ID: uuid.New().String(), StartTime: start.UTC()}

	_, err := s.pool.Exec(ctx, `INSERT INTO trips (id, start_time) VALUES ($1, $2)`, t.ID, t.StartTime)
	if err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}
	return t, nil
}

// EndTrip implements trip.Store.
func (s *Store) EndTrip(ctx context.Context, id string, end time.Time) (*trip.Trip, error) {
	tripID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", trip.ErrNotFound, id)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE trips SET end_time=$2 WHERE id=$1 AND end_time IS NULL`, tripID, end.UTC())
	if err != nil {
		return nil, fmt.Errorf("end trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already ended
		if _, err := s.findTrip(ctx, tripID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", trip.ErrAlreadyEnded, id)
	}
	return s.loadTrip(ctx, tripID)
}

// AddEvent implements trip.Store.
func (s *Store) AddEvent(ctx context.Context, ev *trip.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	tripID, err := uuid.Parse(ev.TripID)
	if err != nil {
		return fmt.Errorf("%w: %s", trip.ErrNotFound, ev.TripID)
	}
	if _, err := s.findTrip(ctx, tripID); err != nil {
		return err
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	query := `
		INSERT INTO drowsiness_events (
			id, trip_id, timestamp, severity, duration, condition, snapshot_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = s.pool.Exec(ctx, query,
		ev.ID, tripID, ev.Timestamp, string(ev.Severity),
		ev.Duration, ev.Condition, ev.SnapshotKey,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// LatestTrip implements trip.Store.
func (s *Store) LatestTrip(ctx context.Context) (*trip.Trip, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM trips ORDER BY start_time DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trip.ErrNoTrips
	}
	if err != nil {
		return nil, fmt.Errorf("latest trip: %w", err)
	}
	return s.loadTrip(ctx, id)
}

// ListTrips implements trip.Store.
func (s *Store) ListTrips(ctx context.Context) ([]*trip.Trip, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, start_time, end_time FROM trips ORDER BY start_time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	trips, err := pgx.CollectRows(rows, scanTrip)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}

	byID := make(map[string]*trip.Trip, len(trips))
	for _, t := range trips {
		byID[t.ID] = t
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, trip_id, timestamp, severity, duration, condition, snapshot_key
		FROM drowsiness_events ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	for _, ev := range events {
		if t, ok := byID[ev.TripID]; ok {
			t.Events = append(t.Events, ev)
		}
	}
	return trips, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) findTrip(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, start_time, end_time FROM trips WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTrip)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", trip.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	return t, nil
}

func (s *Store) loadTrip(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	t, err := s.findTrip(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, trip_id, timestamp, severity, duration, condition, snapshot_key
		FROM drowsiness_events WHERE trip_id=$1 ORDER BY timestamp`, id)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	t.Events, err = pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return t, nil
}

func scanTrip(row pgx.CollectableRow) (*trip.Trip, error) {
	var (
		id    uuid.UUID
		start time.Time
		end   *time.Time
	)
	if err := row.Scan(&id, &start, &end); err != nil {
		return nil, err
	}
	t := &trip.Trip{ID: id.String(), StartTime: start.UTC()}
	if end != nil {
		e := end.UTC()
		t.EndTime = &e
	}
	return t, nil
}

func scanEvent(row pgx.CollectableRow) (trip.Event, error) {
	var (
		ev       trip.Event
		id       uuid.UUID
		tripID   uuid.UUID
		severity string
	)
	err := row.Scan(&id, &tripID, &ev.Timestamp, &severity, &ev.Duration, &ev.Condition, &ev.SnapshotKey)
	if err != nil {
		return ev, err
	}
	ev.ID = id.String()
	ev.TripID = tripID.String()
	ev.Severity = trip.Severity(severity)
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}

var _ trip.Store = (*Store)(nil)
