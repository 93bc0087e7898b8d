// Package main provides the entrypoint for the rotabus API gateway.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api"
	"github.com/rotabus/rotabus/internal/api/handler"
	"github.com/rotabus/rotabus/internal/api/middleware"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/config"
	"github.com/rotabus/rotabus/internal/destinations"
	"github.com/rotabus/rotabus/internal/lines"
	"github.com/rotabus/rotabus/internal/provider/resilience"
	"github.com/rotabus/rotabus/internal/routing"
	"github.com/rotabus/rotabus/internal/search"
	"github.com/rotabus/rotabus/internal/session"
	"github.com/rotabus/rotabus/internal/store"
	"github.com/rotabus/rotabus/internal/telemetry"
	"github.com/rotabus/rotabus/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "rotabus-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Str("store", cfg.StoreDriver).
		Msg("starting rotabus API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampling,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Shared store
	st, err := store.Open(ctx, cfg.Store(log))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Transit backend behind the resilient client
	registry := resilience.NewRegistry()
	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.BackendBaseURL,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		Registry:   registry,
		Logger:     log,
	})
	log.Info().Str("base_url", cfg.BackendBaseURL).Msg("transit backend client initialized")

	sessions := session.NewService(session.Config{
		Backend: backendClient,
		Store:   st.Store,
		Logger:  log,
	})
	destinationService := destinations.NewService(backendClient, st.Store, log)
	searchService := search.NewService(st.Store, destinationService, log)
	linesService := lines.NewService(lines.ServiceConfig{
		Fetcher:      backendClient,
		Store:        st.Store,
		Logger:       log,
		MaxAge:       cfg.PositionsMaxAge,
		ServiceToken: cfg.BackendServiceToken,
	})
	routeService := routing.NewService(routing.ServiceConfig{
		Fetcher:  backendClient,
		Logger:   log,
		CacheTTL: cfg.RouteCacheTTL,
	})

	// On-demand refreshes go to the worker only when it shares our store.
	var publisher handler.RefreshPublisher
	if cfg.PubSubEnabled() && cfg.StoreDriver != config.StoreMemory {
		p, err := worker.NewPublisher(ctx, worker.PublisherConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubRefreshTopic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create refresh publisher")
		}
		defer func() {
			if err := p.Close(); err != nil {
				log.Error().Err(err).Msg("closing refresh publisher")
			}
		}()
		publisher = p
		log.Info().Str("topic", cfg.PubSubRefreshTopic).Msg("refreshes queued through pubsub")
	}

	// With the in-memory store no worker can see our snapshot, so poll here.
	if cfg.StoreDriver == config.StoreMemory {
		poller := lines.NewPoller(linesService, cfg.PositionsPollInterval, log)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("positions poller stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		RequireTLS:   cfg.RequireTLS,
		Sessions:     sessions,
		Destinations: destinationService,
		Search:       searchService,
		Lines:        linesService,
		Routes:       routeService,
		Publisher:    publisher,
		StoreName:    cfg.StoreDriver,
		Store:        st.Store,
		Registry:     registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
