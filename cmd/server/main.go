package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/nws-observation-ingest/internal/adapter/httpapi"
	"github.com/couchcryptid/nws-observation-ingest/internal/adapter/nws"
	"github.com/couchcryptid/nws-observation-ingest/internal/config"
	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
	"github.com/couchcryptid/nws-observation-ingest/internal/pipeline"
	"github.com/couchcryptid/nws-observation-ingest/internal/scheduler"
	"github.com/couchcryptid/nws-observation-ingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.SQLitePath, cfg.SQLiteDSN, cfg.SQLiteMaxOpenConns)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}

	client := nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.NWSTimeout, metrics, logger)

	var resolver pipeline.StationResolver = client
	var fetcher pipeline.ObservationFetcher = client
	if cfg.BreakerEnabled {
		breaker := nws.NewBreakerClient(client, logger)
		resolver, fetcher = breaker, breaker
		logger.Info("circuit breaker enabled")
	}

	p := pipeline.New(resolver, fetcher, st, logger, metrics, cfg.FetchLimit)
	sched := scheduler.New(cfg.Stations, cfg.IngestInterval, p, logger)
	srv := httpapi.NewServer(cfg.HTTPAddr, st, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
