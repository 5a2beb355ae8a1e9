// Package monitor runs the frame loop: a capture goroutine feeding a
// single-slot mailbox, and a consumer that extracts signals, advances
// the condition latches and turns finished occurrences into events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/annotate"
	"github.com/roadguard/go-roadguard/pkg/camera"
	"github.com/roadguard/go-roadguard/pkg/latch"
	"github.com/roadguard/go-roadguard/pkg/metrics"
	"github.com/roadguard/go-roadguard/pkg/sink"
	"github.com/roadguard/go-roadguard/pkg/trip"
	"gocv.io/x/gocv"
)

// ErrConfig is returned by New for a missing collaborator.
var ErrConfig = errors.New("monitor: invalid config")

// TripRecorder opens and closes the trip a monitoring run belongs to.
// trip.Store and the backend HTTP sink both implement it.
type TripRecorder interface {
	StartTrip(ctx context.Context, start time.Time) (*trip.Trip, error)
	EndTrip(ctx context.Context, id string, end time.Time) (*trip.Trip, error)
}

// Snapshotter stores evidence images.
type Snapshotter interface {
	Upload(ctx context.Context, key string, jpeg []byte) error
}

// Observer sees every processed frame on the consumer goroutine. It must
// not block and must not keep frame after returning.
type Observer interface {
	Observe(frame gocv.Mat, r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(frame gocv.Mat, r Report)

// Observe calls f.
func (f ObserverFunc) Observe(frame gocv.Mat, r Report) { f(frame, r) }

// Config wires a Monitor.
type Config struct {
	Source   camera.Source
	Pipeline *Pipeline

	Trips     TripRecorder // optional
	Sinks     []sink.Sink
	Severity  SeverityPolicy // default DefaultThresholdSeverity
	Snapshots Snapshotter    // optional
	Observers []Observer
	Metrics   *metrics.Metrics

	// SnapshotQuality is the JPEG quality of evidence images.
	SnapshotQuality int
	// EmitTimeout bounds each sink call.
	EmitTimeout time.Duration
	// Now is the frame clock. Defaults to time.Now.
	Now func() time.Time
}

// Status is a point-in-time view of a monitor, safe to read from any
// goroutine.
type Status struct {
	Running   bool                   `json:"running"`
	TripID    string                 `json:"trip_id,omitempty"`
	StartedAt time.Time              `json:"started_at,omitzero"`
	Frames    uint64                 `json:"frames"`
	Dropped   uint64                 `json:"dropped"`
	Events    uint64                 `json:"events"`
	Last      *Report                `json:"last,omitempty"`
	Latches   map[string]latch.State `json:"latches,omitempty"`
}

// Monitor owns one monitoring run.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	status atomic.Pointer[Status]
	events atomic.Uint64

	// consumer-owned
	snapKeys map[string]string
	uploads  sync.WaitGroup
}

// New validates cfg and creates a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrConfig)
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is required", ErrConfig)
	}
	if cfg.Severity == nil {
		cfg.Severity = DefaultThresholdSeverity.Severity
	}
	if cfg.SnapshotQuality <= 0 {
		cfg.SnapshotQuality = 85
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Monitor{
		cfg:      cfg,
		logger:   log.Component("monitor"),
		snapKeys: make(map[string]string),
	}
	m.status.Store(&Status{})
	return m, nil
}

// AddObserver registers o. It must be called before Run.
func (m *Monitor) AddObserver(o Observer) {
	m.cfg.Observers = append(m.cfg.Observers, o)
}

// Status returns the latest status snapshot.
func (m *Monitor) Status() Status {
	return *m.status.Load()
}

// Run monitors until ctx is cancelled, the source is exhausted, or the
// camera fails. Camera failure is returned; everything else returns nil.
// On the way out it flushes open occurrences, ends the trip and closes
// the source.
func (m *Monitor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := m.cfg.Now()
	tripID, err := m.startTrip(ctx, started)
	if err != nil {
		m.cfg.Source.Close()
		return err
	}
	m.status.Store(&Status{Running: true, TripID: tripID, StartedAt: started})
	m.logger.Info("monitoring started", "trip_id", tripID, "conditions", len(m.cfg.Pipeline.Conditions()))

	events := make(chan trip.Event, 64)
	var emitWG sync.WaitGroup
	emitWG.Add(1)
	go func() {
		defer emitWG.Done()
		m.emitLoop(events)
	}()

	slot := NewFrameSlot(m.cfg.Metrics.FrameDropped)
	captureErr := make(chan error, 1)
	go func() {
		captureErr <- m.capture(runCtx, slot)
	}()
	go func() {
		<-runCtx.Done()
		slot.Close()
	}()

	var frames uint64
	for {
		f, ok := slot.Next()
		if !ok {
			break
		}
		frames++
		m.handle(runCtx, f, tripID, events, slot, frames)
		f.Mat.Close()
	}

	cancel()
	err = <-captureErr
	if cerr := m.cfg.Source.Close(); cerr != nil {
		m.logger.Warn("closing source failed", "error", cerr)
	}

	ended := m.cfg.Now()
	for _, occ := range m.cfg.Pipeline.Flush() {
		m.finish(occ, tripID, events)
	}
	close(events)
	emitWG.Wait()
	m.uploads.Wait()

	m.endTrip(tripID, ended)

	st := m.Status()
	st.Running = false
	st.Latches = m.cfg.Pipeline.States()
	m.status.Store(&st)

	m.logger.Info("monitoring stopped",
		"trip_id", tripID,
		"frames", frames,
		"dropped", slot.Dropped(),
		"events", m.events.Load(),
		"error", err,
	)
	return err
}

// capture reads frames until the context ends or the source fails.
func (m *Monitor) capture(ctx context.Context, slot *FrameSlot) error {
	defer slot.Close()

	for ctx.Err() == nil {
		mat, err := m.cfg.Source.Read()
		if errors.Is(err, io.EOF) {
			m.logger.Info("source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("monitor: capture: %w", err)
		}
		m.cfg.Metrics.FrameCaptured()

		if err := camera.Normalize(&mat); err != nil {
			m.logger.Debug("dropping unreadable frame", "error", err)
			mat.Close()
			continue
		}
		slot.Publish(mat, m.cfg.Now())
	}
	return nil
}

func (m *Monitor) handle(ctx context.Context, f *Frame, tripID string, events chan<- trip.Event, slot *FrameSlot, frames uint64) {
	start := time.Now()
	r := m.cfg.Pipeline.Process(f.Mat, f.At)
	m.cfg.Metrics.FrameProcessed(time.Since(start), r.Face != nil, r.EAR)

	for _, c := range r.Conditions {
		if c.Kind != latch.NoChange {
			m.cfg.Metrics.Transition(c.Name, c.Kind.String())
		}
	}

	for _, name := range r.Exceeded {
		if m.cfg.Snapshots != nil && m.cfg.Pipeline.Emits(name) {
			m.snapshot(ctx, f.Mat, r, tripID, name)
		}
	}

	for _, occ := range r.Finished {
		m.finish(occ, tripID, events)
	}

	for _, o := range m.cfg.Observers {
		o.Observe(f.Mat, r)
	}

	st := m.Status()
	st.Frames = frames
	st.Dropped = slot.Dropped()
	st.Events = m.events.Load()
	st.Last = &r
	st.Latches = m.cfg.Pipeline.States()
	m.status.Store(&st)
}

// finish turns an occurrence into an event and queues it for the sinks.
func (m *Monitor) finish(occ Occurrence, tripID string, events chan<- trip.Event) {
	key := m.snapKeys[occ.Condition]
	delete(m.snapKeys, occ.Condition)

	if !occ.Emit {
		m.logger.Info("occurrence finished", "condition", occ.Condition, "seconds", occ.Duration.Seconds())
		return
	}

	ev := trip.Event{
		ID:          uuid.New().String(),
		TripID:      tripID,
		Timestamp:   occ.StartedAt,
		Severity:    m.cfg.Severity(occ.Duration),
		Duration:    occ.Duration.Seconds(),
		Condition:   occ.Condition,
		SnapshotKey: key,
	}
	m.events.Add(1)
	m.cfg.Metrics.EventEmitted(ev.Condition, string(ev.Severity))
	m.logger.Warn("drowsiness event",
		"condition", ev.Condition,
		"severity", ev.Severity,
		"seconds", ev.Duration,
	)
	events <- ev
}

// emitLoop delivers events to every sink. Failures are logged and
// counted, never retried.
func (m *Monitor) emitLoop(events <-chan trip.Event) {
	for ev := range events {
		for _, s := range m.cfg.Sinks {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EmitTimeout)
			err := s.Emit(ctx, ev)
			cancel()
			if err != nil {
				name := sink.NameOf(s)
				m.cfg.Metrics.SinkFailed(name)
				m.logger.Error("sink rejected event", "sink", name, "event_id", ev.ID, "error", err)
			}
		}
	}
}

func (m *Monitor) snapshot(ctx context.Context, frame gocv.Mat, r Report, tripID, condition string) {
	data, err := annotate.Snapshot(frame, annotate.Overlay{
		Face:   r.Face,
		EAR:    r.EAR,
		Alerts: r.Alerting(),
	}, m.cfg.SnapshotQuality)
	if err != nil {
		m.cfg.Metrics.Snapshot(false)
		m.logger.Warn("snapshot encode failed", "condition", condition, "error", err)
		return
	}

	key := SnapshotKey(tripID, condition, r.At)
	m.snapKeys[condition] = key

	m.uploads.Add(1)
	go func() {
		defer m.uploads.Done()
		upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.EmitTimeout)
		defer cancel()
		if err := m.cfg.Snapshots.Upload(upCtx, key, data); err != nil {
			m.cfg.Metrics.Snapshot(false)
			m.logger.Warn("snapshot upload failed", "key", key, "error", err)
			return
		}
		m.cfg.Metrics.Snapshot(true)
		m.logger.Debug("snapshot uploaded", "key", key, "bytes", len(data))
	}()
}

// SnapshotKey names the evidence image of a threshold crossing.
func SnapshotKey(tripID, condition string, at time.Time) string {
	if tripID == "" {
		tripID = "untracked"
	}
	return fmt.Sprintf("%s/%s-%s.jpg", tripID, condition, at.UTC().Format("20060102T150405.000Z"))
}

func (m *Monitor) startTrip(ctx context.Context, at time.Time) (string, error) {
	if m.cfg.Trips == nil {
		return uuid.New().String(), nil
	}
	t, err := m.cfg.Trips.StartTrip(ctx, at)
	if err != nil {
		return "", fmt.Errorf("monitor: start trip: %w", err)
	}
	return t.ID, nil
}

func (m *Monitor) endTrip(id string, at time.Time) {
	if m.cfg.Trips == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EmitTimeout)
	defer cancel()
	if _, err := m.cfg.Trips.EndTrip(ctx, id, at); err != nil {
		m.logger.Error("ending trip failed", "trip_id", id, "error", err)
	}
}
