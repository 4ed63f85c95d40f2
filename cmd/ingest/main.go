// Command ingest performs a single ingestion run for one station and exits.
// It shares configuration with the server, so a run seeds the same database
// the aggregate endpoints read from.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/nws-observation-ingest/internal/adapter/nws"
	"github.com/couchcryptid/nws-observation-ingest/internal/config"
	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
	"github.com/couchcryptid/nws-observation-ingest/internal/pipeline"
	"github.com/couchcryptid/nws-observation-ingest/internal/store"
)

func main() {
	station := flag.String("station", "", "NWS station identifier (defaults to the first configured station)")
	startFlag := flag.String("start", "", "window start, RFC 3339 (defaults to seven days before end)")
	endFlag := flag.String("end", "", "window end, RFC 3339 (defaults to now)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	stationID := *station
	if stationID == "" {
		stationID = cfg.Stations[0]
	}

	start, err := parseTimeFlag(*startFlag)
	if err != nil {
		logger.Error("invalid -start value", "value", *startFlag, "error", err)
		os.Exit(1)
	}
	end, err := parseTimeFlag(*endFlag)
	if err != nil {
		logger.Error("invalid -end value", "value", *endFlag, "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.SQLitePath, cfg.SQLiteDSN, cfg.SQLiteMaxOpenConns)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer st.Close() //nolint:errcheck // process is exiting

	client := nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.NWSTimeout, metrics, logger)

	var resolver pipeline.StationResolver = client
	var fetcher pipeline.ObservationFetcher = client
	if cfg.BreakerEnabled {
		breaker := nws.NewBreakerClient(client, logger)
		resolver, fetcher = breaker, breaker
	}

	p := pipeline.New(resolver, fetcher, st, logger, metrics, cfg.FetchLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inserted, err := p.Ingest(ctx, stationID, start, end)
	if err != nil {
		logger.Error("ingestion failed", "station", stationID, "error", err)
		os.Exit(1)
	}
	logger.Info("ingestion finished", "station", stationID, "inserted", inserted)
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
