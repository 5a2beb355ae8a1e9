package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JSONStore implements Store using a JSON file for persistence.
// An empty path keeps everything in memory.
type JSONStore struct {
	path  string
	trips map[string]*Trip
	mu    sync.RWMutex
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version   int     `json:"version"`
	UpdatedAt string  `json:"updated_at"`
	Trips     []*Trip `json:"trips"`
}

const currentVersion = 1

// NewJSONStore creates a JSON-backed store at path.
// If the file doesn't exist, it will be created on first write.
func NewJSONStore(path string) (*JSONStore, error) {
	store := &JSONStore{
		path:  path,
		trips: make(map[string]*Trip),
	}
	if path == "" {
		return store, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}

	return store, nil
}

// NewMemoryStore returns a store that is never written to disk.
func NewMemoryStore() *JSONStore {
	s, _ := NewJSONStore("")
	return s
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.trips = make(map[string]*Trip, len(stored.Trips))
	for _, t := range stored.Trips {
		s.trips[t.ID] = t
	}
	return nil
}

// save writes the store to disk. Callers hold the write lock.
func (s *JSONStore) save() error {
	if s.path == "" {
		return nil
	}

	stored := storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Trips:     s.sorted(),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// StartTrip implements Store.
func (s *JSONStore) StartTrip(_ context.Context, start time.Time) (*Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Trip{
		ID:        uuid.New().String(),
		StartTime: start.UTC(),
	}
	s.trips[t.ID] = t
	if err := s.save(); err != nil {
		delete(s.trips, t.ID)
		return nil, err
	}
	return t.Clone(), nil
}

// EndTrip implements Store.
func (s *JSONStore) EndTrip(_ context.Context, id string, end time.Time) (*Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trips[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.EndTime != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEnded, id)
	}

	end = end.UTC()
	t.EndTime = &end
	if err := s.save(); err != nil {
		t.EndTime = nil
		return nil, err
	}
	return t.Clone(), nil
}

// AddEvent implements Store. A zero Timestamp is set to now.
func (s *JSONStore) AddEvent(_ context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trips[ev.TripID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, ev.TripID)
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	prev := t.Events
	events := append(append([]Event(nil), prev...), *ev)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	t.Events = events
	if err := s.save(); err != nil {
		t.Events = prev
		return err
	}
	return nil
}

// LatestTrip implements Store.
func (s *JSONStore) LatestTrip(_ context.Context) (*Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trips := s.sorted()
	if len(trips) == 0 {
		return nil, ErrNoTrips
	}
	return trips[0].Clone(), nil
}

// ListTrips implements Store.
func (s *JSONStore) ListTrips(_ context.Context) ([]*Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trips := s.sorted()
	out := make([]*Trip, len(trips))
	for i, t := range trips {
		out[i] = t.Clone()
	}
	return out, nil
}

// Count returns the number of stored trips.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trips)
}

// Close implements Store.
func (s *JSONStore) Close() error {
	return nil
}

// sorted returns the trips newest first.
func (s *JSONStore) sorted() []*Trip {
	trips := make([]*Trip, 0, len(s.trips))
	for _, t := range s.trips {
		trips = append(trips, t)
	}
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].StartTime.Equal(trips[j].StartTime) {
			return trips[i].ID > trips[j].ID
		}
		return trips[i].StartTime.After(trips[j].StartTime)
	})
	return trips
}
