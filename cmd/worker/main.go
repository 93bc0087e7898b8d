// Package main provides the entrypoint for the rotabus background worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/api/response"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/config"
	"github.com/rotabus/rotabus/internal/lines"
	"github.com/rotabus/rotabus/internal/provider/resilience"
	"github.com/rotabus/rotabus/internal/store"
	"github.com/rotabus/rotabus/internal/telemetry"
	"github.com/rotabus/rotabus/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "rotabus-worker"

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

	log.Info().Str("build_time", BuildTime).Msg("starting rotabus worker")

	if cfg.StoreDriver == config.StoreMemory {
		log.Warn().Msg("worker is running with the in-memory store; the API will not see its snapshots")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	jobMetrics, err := telemetry.NewJobMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize job metrics")
	}

	st, err := store.Open(ctx, cfg.Store(log))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	registry := resilience.NewRegistry()
	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.BackendBaseURL,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		Registry:   registry,
		Logger:     log,
	})

	linesService := lines.NewService(lines.ServiceConfig{
		Fetcher:      backendClient,
		Store:        st.Store,
		Logger:       log,
		MaxAge:       cfg.PositionsMaxAge,
		ServiceToken: cfg.BackendServiceToken,
	})

	jobCfg := worker.RefreshJobConfig{
		Config:    worker.DefaultRefreshConfig(),
		Logger:    log,
		Positions: linesService,
		Metrics:   jobMetrics,
	}
	if st.Postgres != nil {
		jobCfg.Purger = st.Postgres
	}
	job := worker.NewRefreshJob(jobCfg)

	// Health endpoint for the container platform
	mux := chi.NewRouter()
	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		details := job.MetricsSnapshot()
		details["version"] = Version
		status := models.HealthStatusOK
		code := http.StatusOK
		if err := st.Store.Ping(r.Context()); err != nil {
			status = models.HealthStatusFail
			code = http.StatusServiceUnavailable
			details["store"] = err.Error()
		}
		response.JSON(w, r, code, models.Health{
			Status:  status,
			Time:    models.Timestamp(time.Now()),
			Details: details,
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.WorkerHealthPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if err := job.Loop(ctx, cfg.PositionsPollInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("refresh loop stopped")
		}
	}()

	if cfg.PubSubProjectID != "" && cfg.PubSubRefreshSub != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubRefreshSub,
			Dispatcher:       worker.NewDispatcher(job, st.Store, log),
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("closing pubsub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("pubsub not configured, running on schedule only")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
