// Package app assembles the in-vehicle monitor from configuration and
// owns the lifecycle of every component it opens.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roadguard/go-roadguard/internal/config"
	"github.com/roadguard/go-roadguard/internal/httpc"
	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/camera"
	"github.com/roadguard/go-roadguard/pkg/detection"
	"github.com/roadguard/go-roadguard/pkg/extract"
	"github.com/roadguard/go-roadguard/pkg/landmark"
	"github.com/roadguard/go-roadguard/pkg/metrics"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"github.com/roadguard/go-roadguard/pkg/preview"
	"github.com/roadguard/go-roadguard/pkg/sink"
	"github.com/roadguard/go-roadguard/pkg/snapshot"
	"github.com/roadguard/go-roadguard/pkg/trip"
	"github.com/roadguard/go-roadguard/pkg/trip/pgstore"
	"github.com/roadguard/go-roadguard/pkg/web"
)

// App is the monitor process.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store     trip.Store
	trips     monitor.TripRecorder
	sinks     []sink.Sink
	snapshots monitor.Snapshotter
	extractor *extract.Extractor
	source    camera.Source
	web       *web.Server
	preview   *preview.Window
	monitor   *monitor.Monitor

	closers []closer
	mu      sync.Mutex
}

type closer struct {
	name string
	fn   func() error
}

// New validates cfg.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		logger:  log.Component("app"),
		metrics: metrics.New(),
	}, nil
}

// Init opens every configured component. Call Shutdown even when Init
// fails; it releases whatever was opened.
func (a *App) Init(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"trips", a.initTrips},
		{"sinks", a.initSinks},
		{"snapshots", a.initSnapshots},
		{"vision", a.initVision},
		{"camera", a.initCamera},
		{"monitor", a.initMonitor},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", s.name, err)
		}
	}
	return nil
}

// Run monitors until ctx is cancelled, the video ends, the preview is
// closed or the camera fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var webErr chan error
	if a.web != nil {
		webErr = make(chan error, 1)
		go func() { webErr <- a.web.Start(ctx) }()
	}

	err := a.monitor.Run(ctx)
	st := a.monitor.Status()
	a.logger.Info("run finished",
		"trip_id", st.TripID,
		"frames", st.Frames,
		"dropped", st.Dropped,
		"events", st.Events,
	)

	cancel()
	if webErr != nil {
		if werr := <-webErr; werr != nil {
			a.logger.Warn("web server stopped with error", "error", werr)
		}
	}
	return err
}

// Status returns the live monitor status.
func (a *App) Status() monitor.Status {
	if a.monitor == nil {
		return monitor.Status{}
	}
	return a.monitor.Status()
}

// Shutdown releases everything Init opened, newest first.
func (a *App) Shutdown() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, closer{name: name, fn: fn})
	a.mu.Unlock()
}

// initTrips picks where trips are recorded. A backend URL records them
// remotely and posts events there; otherwise the local store is used.
func (a *App) initTrips(ctx context.Context) error {
	if url := a.cfg.Backend.URL; url != "" {
		backend := sink.NewHTTP(url, httpc.NewClient(a.cfg.Backend.Timeout))
		a.trips = backend
		a.sinks = append(a.sinks, backend)
		a.logger.Info("recording trips on backend", "url", url)
		return nil
	}

	store, err := OpenStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.onClose("store", store.Close)
	a.store = store
	a.trips = store
	a.sinks = append(a.sinks, sink.NewStore(store))
	a.logger.Info("recording trips locally", "store", a.cfg.Store.Kind)
	return nil
}

func (a *App) initSinks(_ context.Context) error {
	if a.cfg.AMQP.URL != "" {
		s, closeFn, err := sink.DialAMQP(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.RoutingKey)
		if err != nil {
			return err
		}
		a.onClose("amqp", closeFn)
		a.sinks = append(a.sinks, s)
		a.logger.Info("publishing events to rabbitmq", "exchange", a.cfg.AMQP.Exchange)
	}

	if a.cfg.MQTT.Broker != "" {
		s, err := sink.ConnectMQTT(a.cfg.MQTTConfig(), log.Component("mqtt"))
		if err != nil {
			return err
		}
		a.onClose("mqtt", s.Close)
		a.sinks = append(a.sinks, s)
		a.logger.Info("publishing events to mqtt", "broker", a.cfg.MQTT.Broker, "topic", a.cfg.MQTT.Topic)
	}
	return nil
}

func (a *App) initSnapshots(ctx context.Context) error {
	if a.cfg.Snapshots.Endpoint == "" {
		return nil
	}
	u, err := snapshot.New(a.cfg.SnapshotConfig())
	if err != nil {
		return err
	}
	if err := u.EnsureBucket(ctx); err != nil {
		return err
	}
	a.snapshots = u
	a.logger.Info("uploading snapshots", "endpoint", a.cfg.Snapshots.Endpoint, "bucket", u.Bucket())
	return nil
}

func (a *App) initVision(_ context.Context) error {
	det, err := detection.New(a.cfg.DetectorConfig())
	if err != nil {
		return err
	}
	a.onClose("detector", det.Close)
	presence := extract.NewPresence(det, a.cfg.Policy(), a.cfg.Detector.MinConfidence)

	var eyes *extract.EyeAspect
	if a.cfg.Landmarks.Enabled {
		loc, err := landmark.NewDNN(a.cfg.LandmarkConfig())
		if err != nil {
			return err
		}
		a.onClose("landmarks", loc.Close)
		eyes = extract.NewEyeAspect(presence, loc)
	} else {
		a.logger.Warn("landmarks disabled, eye closure is not monitored")
	}

	a.extractor = extract.New(presence, eyes)
	return nil
}

// initCamera opens the source after the pipeline parts. The monitor
// closes it when Run ends; the closer covers a Run that never starts.
func (a *App) initCamera(_ context.Context) error {
	src, err := camera.Open(a.cfg.CameraConfig())
	if err != nil {
		return err
	}
	a.onClose("camera", src.Close)
	a.source = src
	a.logger.Info("camera opened", "source", src.Name())
	return nil
}

func (a *App) initMonitor(_ context.Context) error {
	var observers []monitor.Observer

	if a.cfg.Web.Enabled {
		a.web = web.NewServer(web.Config{
			Addr:      a.cfg.Web.Addr,
			Store:     a.store,
			Status:    a.Status,
			Metrics:   a.metrics,
			Dashboard: a.cfg.Web.Dashboard,
		})
		feed := a.web.Feed()
		feed.Quality = a.cfg.Camera.Quality
		observers = append(observers, feed)
	}

	m, err := monitor.New(monitor.Config{
		Source:          a.source,
		Pipeline:        monitor.NewPipeline(a.extractor, a.cfg.Conditions()),
		Trips:           a.trips,
		Sinks:           a.sinks,
		Severity:        a.cfg.Severity().Severity,
		Snapshots:       a.snapshots,
		SnapshotQuality: a.cfg.Snapshots.Quality,
		Observers:       observers,
		Metrics:         a.metrics,
	})
	if err != nil {
		return err
	}
	a.monitor = m
	return nil
}

// EnablePreview adds the local preview window. onQuit is called when the
// user closes it. Call after Init.
func (a *App) EnablePreview(onQuit func()) error {
	if a.monitor == nil {
		return errors.New("app: preview before init")
	}
	a.preview = preview.New(preview.DefaultTitle, onQuit)
	a.onClose("preview", a.preview.Close)
	a.monitor.AddObserver(a.preview)
	return nil
}

// OpenStore opens the configured trip store.
func OpenStore(ctx context.Context, cfg config.Store) (trip.Store, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return trip.NewMemoryStore(), nil
	case config.StoreJSON, "":
		return trip.NewJSONStore(cfg.Path)
	case config.StorePostgres:
		return pgstore.Open(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Kind)
	}
}
