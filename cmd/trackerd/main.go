// Command trackerd runs the location tracking daemon.
//
// The daemon polls the configured location networks on an interval, decrypts
// and deduplicates the returned reports, persists them, and serves the
// collected track over an HTTP API.
//
// # Configuration
//
// Create a YAML file with daemon settings:
//
//	listen_addr: ":8080"
//	metrics_addr: ":9090"
//	log:
//	  json: true
//	  debug: false
//	keys:
//	  findmy: "keys.json"
//	  fmdn: "eik.json"
//	apple:
//	  auth: "auth.json"
//	  anisette_url: "http://localhost:6969"
//	google:
//	  token_cache: "google_tokens.json"
//	poll:
//	  interval: 15m
//	  window_hours: 24
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "tracker"
//	  password: "secret"
//	  database: "tracker"
//
// At least one keyfile must be configured; a network without key material is
// skipped. Reports land in PostgreSQL when a database is configured, in
// memory otherwise.
//
// # Endpoints
//
//	GET /api/v1/locations?hours=24&source=apple
//	GET /api/v1/devices
//	GET /api/v1/keys?scheme=apple&count=5
//	GET /livez, /readyz, /drain, /undrain
//
// Prometheus metrics are served on the metrics address under /metrics.
//
// # Usage
//
//	go run ./cmd/trackerd -config trackerd.yaml
//	go run ./cmd/trackerd -version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Enter-tainer/gps-tracker/api/httpserver"
	cmdcommon "github.com/Enter-tainer/gps-tracker/cmd/common"
	"github.com/Enter-tainer/gps-tracker/common"
	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/fmdn"
	"github.com/Enter-tainer/gps-tracker/services"
)

func main() {
	var (
		configPath   = flag.String("config", "trackerd.yaml", "Path to YAML config file")
		printVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *printVersion {
		fmt.Printf("trackerd %s\n", common.Version)
		return
	}

	cfg, err := cmdcommon.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	log := cmdcommon.NewLogger(cfg.Log)
	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("trackerd failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *cmdcommon.Config, log *slog.Logger) error {
	store, err := cmdcommon.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	fetcherCfg := &services.FetcherConfig{
		DedupeRadius: cfg.Poll.DedupeRadius,
		Log:          log,
	}

	if cfg.Keys.FindMy != "" {
		acc, err := findmy.LoadAccessory(cfg.Keys.FindMy)
		if err != nil {
			return fmt.Errorf("loading findmy keys: %w", err)
		}
		auth, err := services.LoadAppleAuth(cfg.Apple.Auth)
		if err != nil {
			return fmt.Errorf("loading apple auth: %w", err)
		}
		apple, err := services.NewAppleClient(&services.AppleConfig{
			Auth:        auth,
			AnisetteURL: cfg.Apple.AnisetteURL,
			Log:         log,
		})
		if err != nil {
			return err
		}
		fetcherCfg.Accessory = acc
		fetcherCfg.Apple = apple
	}

	if cfg.Keys.FMDN != "" {
		ident, err := fmdn.LoadIdentity(cfg.Keys.FMDN)
		if err != nil {
			return fmt.Errorf("loading fmdn keys: %w", err)
		}
		google, err := services.NewGoogleClient(&services.GoogleConfig{
			TokenCachePath: cfg.Google.TokenCache,
			Log:            log,
		})
		if err != nil {
			return err
		}
		fetcherCfg.Identity = ident
		fetcherCfg.Google = google
	}

	fetcher, err := services.NewFetcher(fetcherCfg)
	if err != nil {
		return err
	}

	poller := services.NewPoller(&services.PollerConfig{
		Fetcher:     fetcher,
		Store:       store,
		Interval:    cfg.Poll.Interval,
		WindowHours: cfg.Poll.WindowHours,
		Log:         log,
	})

	api := services.NewAPIService(&services.APIConfig{
		Store:     store,
		Accessory: fetcherCfg.Accessory,
		Identity:  fetcherCfg.Identity,
		Log:       log,
	})

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, api)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(pollCtx)
	}()

	srv.RunInBackground()
	log.Info("trackerd started",
		"version", common.Version,
		"listenAddr", cfg.ListenAddr,
		"interval", cfg.Poll.Interval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	<-pollerDone
	srv.Shutdown()
	return nil
}
