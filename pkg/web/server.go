// Package web serves the trip query and ingest API, live monitor status,
// Prometheus metrics and the dashboard.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/hub"
	"github.com/roadguard/go-roadguard/pkg/metrics"
	"github.com/roadguard/go-roadguard/pkg/monitor"
	"github.com/roadguard/go-roadguard/pkg/trip"
)

//go:embed dashboard
var dashboardFS embed.FS

// Config wires a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr  string
	Store trip.Store
	// Status reports the live monitor, if one runs in this process.
	Status func() monitor.Status
	// Metrics is exposed at /metrics when set.
	Metrics *metrics.Metrics
	// Dashboard serves the embedded dashboard at /.
	Dashboard bool
	// Now stamps trips and events posted without a time.
	Now func() time.Time
}

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	transitions *hub.Hub
	camera      *hub.Hub
}

// NewServer builds the routes. Nothing listens until Start.
func NewServer(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:         cfg,
		logger:      log.Component("web"),
		transitions: hub.New("transitions"),
		camera:      hub.New("camera"),
	}
	if cfg.Metrics != nil {
		// Both hubs feed one gauge.
		count := func(int) {
			cfg.Metrics.ClientsChanged(s.transitions.ClientCount() + s.camera.ClientCount())
		}
		s.transitions.OnCount(count)
		s.camera.OnCount(count)
	}

	app := fiber.New(fiber.Config{
		AppName:               "roadguard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(s.logRequests)

	app.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/trip/latest", s.handleLatestTrip)
	api.Get("/trips", s.handleListTrips)
	api.Post("/trips", s.handleStartTrip)
	api.Post("/trips/:id/end", s.handleEndTrip)
	api.Post("/trips/:id/events", s.handleAddEvent)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/transitions", websocket.New(s.serveHub(s.transitions)))
	app.Get("/ws/camera", websocket.New(s.serveHub(s.camera)))

	if cfg.Dashboard {
		sub, err := fs.Sub(dashboardFS, "dashboard")
		if err == nil {
			app.Use("/", filesystem.New(filesystem.Config{
				Root:   http.FS(sub),
				Index:  "index.html",
				Browse: false,
			}))
		}
	}

	s.app = app
	return s
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Transitions returns the hub behind /ws/transitions.
func (s *Server) Transitions() *hub.Hub {
	return s.transitions
}

// Camera returns the hub behind /ws/camera.
func (s *Server) Camera() *hub.Hub {
	return s.camera
}

// Feed returns a monitor observer that publishes to this server's hubs.
func (s *Server) Feed() *hub.Feed {
	return hub.NewFeed(s.transitions, s.camera)
}

// Start runs the hubs and listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.transitions.Run(ctx)
	go s.camera.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr, "dashboard", s.cfg.Dashboard)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		if !h.IsRunning() {
			c.Close()
			return
		}
		hub.NewClient(h, c).Run()
	}
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"took", time.Since(start),
	)
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"message": err.Error()})
}
