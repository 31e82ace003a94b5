package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpapi "github.com/i474232898/karwanua/internal/api/http"
	"github.com/i474232898/karwanua/internal/config"
	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/environment/providers"
	"github.com/i474232898/karwanua/internal/observability"
	"github.com/i474232898/karwanua/internal/scheduler"
	"github.com/i474232898/karwanua/internal/store"
)

func main() {
	envErr := godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Info("no .env file loaded", "error", envErr)
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.HTTPClientConfig{
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Backoff: providers.DefaultBackoff,
		Metrics: metrics,
	}

	// Providers with resilience (backoff + circuit breaker).
	provs := environment.Providers{
		AirQuality:  providers.NewOpenMeteoProvider(httpCfg),
		NDVI:        providers.NewMODISProvider(httpCfg, clock),
		Temperature: providers.NewNOAAProvider(httpCfg, clock),
	}
	if cfg.GoogleGeocodingAPIKey != "" {
		provs.Geocoder = providers.NewGoogleGeocoderProvider(cfg.GoogleGeocodingAPIKey, metrics)
	} else {
		provs.Geocoder = providers.NewNominatimProvider(httpCfg, cfg.NominatimUserAgent)
	}
	if cfg.GroqAPIKey != "" {
		provs.LLM = providers.NewGroqProvider(httpCfg, cfg.GroqAPIKey)
	} else {
		log.Warn("GROQ_API_KEY not set; AI insight endpoints will return errors")
	}

	var snapshots environment.Store = store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge, store.WithClock(clock))
	if cfg.StorePath != "" {
		db, err := store.OpenSQLiteStore(cfg.StorePath, cfg.StoreMaxHistory, cfg.StoreMaxAge, store.WithClock(clock))
		if err != nil {
			log.Error("failed to open snapshot database", "path", cfg.StorePath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		snapshots = db
	}
	service := environment.NewService(snapshots, provs, log,
		environment.WithClock(clock),
		environment.WithDefaultModel(cfg.GroqModel),
	)

	// Scheduler that periodically snapshots tracked locations.
	sched := scheduler.New(cfg.TrackedLocations, cfg.FetchInterval, service, log, metrics)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, log, true)

	go func() {
		log.Info("gateway listening", "port", cfg.Port, "geocoder", provs.Geocoder.Name(), "tracked", len(cfg.TrackedLocations))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
