// RoadGuard API - trip and drowsiness event backend.
// Serves the query API and dashboard over a trip store, and accepts trips
// and events posted by monitors.
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
	"github.com/roadguard/go-roadguard/pkg/metrics"
	"github.com/roadguard/go-roadguard/pkg/web"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Error("opening store failed", "store", cfg.Store.Kind, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := web.NewServer(web.Config{
		Addr:      cfg.Web.Addr,
		Store:     store,
		Metrics:   metrics.New(),
		Dashboard: cfg.Web.Dashboard,
	})
	if err := srv.Start(ctx); err != nil {
		log.Error("server stopped", "error", err)
		store.Close()
		os.Exit(1)
	}
}

func parseFlags() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	debug := flag.Bool("debug", false, "Enable debug logging")
	addr := flag.String("addr", cfg.Web.Addr, "Listen address")
	store := flag.String("store", cfg.Store.Kind, "Trip store: json, memory, postgres")
	path := flag.String("store-path", cfg.Store.Path, "JSON store file")
	dbURL := flag.String("database-url", cfg.Store.DatabaseURL, "Postgres connection URL")
	dashboard := flag.Bool("dashboard", cfg.Web.Dashboard, "Serve the dashboard")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Web.Addr = *addr
	cfg.Web.Dashboard = *dashboard
	cfg.Store.Kind = *store
	cfg.Store.Path = *path
	cfg.Store.DatabaseURL = *dbURL
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
