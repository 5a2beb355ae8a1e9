// RoadGuard - in-cabin drowsiness monitor.
// Watches the driver through a camera (or replays a recording), tracks
// face presence and eye closure, and records drowsiness events per trip.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/roadguard/go-roadguard/internal/config"
	"github.com/roadguard/go-roadguard/internal/log"
	"github.com/roadguard/go-roadguard/pkg/app"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
	if cfg.Preview {
		if err := a.EnablePreview(cancel); err != nil {
			log.Warn("preview unavailable", "error", err)
		}
	}

	if err := a.Run(ctx); err != nil {
		log.Error("monitor stopped", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the environment, then applies command-line overrides.
func parseFlags() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	debug := flag.Bool("debug", false, "Enable debug logging")
	video := flag.String("video", "", "Replay a video file instead of the camera")
	device := flag.String("device", cfg.Camera.Device, "Camera device index or path")
	preset := flag.String("preset", "", "Camera preset: default, 720p, 1080p, lowpower")
	fast := flag.Bool("fast", false, "Replay video as fast as possible")
	preview := flag.Bool("preview", cfg.Preview, "Show a local preview window (q to quit)")
	detector := flag.String("detector", cfg.Detector.Kind, "Face detector: dnn, haar, yunet")
	policy := flag.String("policy", cfg.Detector.Policy, "Face selection: first, best, largest")
	store := flag.String("store", cfg.Store.Kind, "Trip store: json, memory, postgres")
	backend := flag.String("backend", cfg.Backend.URL, "Record trips on a remote roadguard API")
	addr := flag.String("addr", cfg.Web.Addr, "Dashboard listen address")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard and API")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if *preset != "" {
		if err := cfg.ApplyPreset(*preset); err != nil {
			return nil, err
		}
	}
	if *video != "" {
		cfg.Camera.VideoFile = *video
	}
	if *fast {
		cfg.Camera.Realtime = false
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	cfg.Camera.Device = *device
	cfg.Preview = *preview
	cfg.Detector.Kind = *detector
	cfg.Detector.Policy = *policy
	cfg.Store.Kind = *store
	cfg.Backend.URL = *backend
	cfg.Web.Addr = *addr
	return cfg, nil
}
