// Package pipeline orchestrates one ingestion run: resolve the station, fetch
// raw observations for a time window, normalize them, and bulk-insert with
// duplicate keys skipped at the store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
	"github.com/couchcryptid/nws-observation-ingest/internal/store"
)

// StationResolver confirms a station exists upstream and returns its metadata.
type StationResolver interface {
	ResolveStation(ctx context.Context, stationID string) (domain.StationMetadata, error)
}

// ObservationFetcher retrieves raw observation features for a time window.
type ObservationFetcher interface {
	FetchObservations(ctx context.Context, stationID string, start, end time.Time, limit int) ([]domain.RawObservation, error)
}

// ObservationStore is the persistence boundary of an ingestion run.
type ObservationStore interface {
	StationByNWSID(ctx context.Context, nwsID string) (domain.Station, error)
	CreateStation(ctx context.Context, meta domain.StationMetadata) (domain.Station, error)
	InsertObservations(ctx context.Context, obs []domain.Observation) (int, error)
}

// Pipeline coordinates resolver, fetcher, normalizer, and store for single
// synchronous ingestion runs. Runs for different stations may execute
// concurrently; dedup correctness rests on the store's unique key.
type Pipeline struct {
	resolver   StationResolver
	fetcher    ObservationFetcher
	store      ObservationStore
	logger     *slog.Logger
	metrics    *observability.Metrics
	fetchLimit int
}

// New creates a Pipeline with the given stages and observability.
func New(r StationResolver, f ObservationFetcher, s ObservationStore, logger *slog.Logger, metrics *observability.Metrics, fetchLimit int) *Pipeline {
	return &Pipeline{
		resolver:   r,
		fetcher:    f,
		store:      s,
		logger:     logger,
		metrics:    metrics,
		fetchLimit: fetchLimit,
	}
}

// Ingest runs the pipeline for one station and returns the number of rows
// actually inserted. Zero start/end select the default window: the seven days
// ending now. An unknown station or an empty fetch terminates the run with a
// zero count and no error; only persistence failures propagate.
func (p *Pipeline) Ingest(ctx context.Context, stationID string, start, end time.Time) (int, error) {
	runStart := time.Now()
	defer func() {
		p.metrics.IngestDuration.Observe(time.Since(runStart).Seconds())
	}()

	start, end = domain.DefaultWindow(start, end)

	station, err := p.ensureStation(ctx, stationID)
	if err != nil {
		if errors.Is(err, ErrInvalidStation) {
			p.logger.Error("station not valid, please check that the station ID is correct", "station", stationID)
			p.metrics.IngestRuns.WithLabelValues("failed").Inc()
			return 0, nil
		}
		p.metrics.IngestRuns.WithLabelValues("failed").Inc()
		return 0, err
	}

	raw, err := p.fetcher.FetchObservations(ctx, stationID, start, end, p.fetchLimit)
	if err != nil {
		p.logger.Error("observation fetch failed", "station", stationID, "error", err)
		p.metrics.IngestRuns.WithLabelValues("failed").Inc()
		return 0, nil
	}
	if len(raw) == 0 {
		p.logger.Warn("no observations found",
			"station", stationID,
			"start", domain.FormatTimestamp(start),
			"end", domain.FormatTimestamp(end),
		)
		p.metrics.IngestRuns.WithLabelValues("empty").Inc()
		return 0, nil
	}
	p.metrics.ObservationsFetched.Add(float64(len(raw)))

	// Normalize; records without a timestamp are unusable and are discarded
	// before persistence.
	batch := make([]domain.Observation, 0, len(raw))
	for _, r := range raw {
		obs := domain.Normalize(r)
		if obs.Timestamp == "" {
			continue
		}
		obs.StationID = station.ID
		batch = append(batch, obs)
	}

	inserted, err := p.store.InsertObservations(ctx, batch)
	if err != nil {
		p.logger.Error("observation insert failed", "station", stationID, "batch_size", len(batch), "error", err)
		p.metrics.IngestRuns.WithLabelValues("failed").Inc()
		return 0, err
	}

	skipped := len(raw) - inserted
	p.metrics.ObservationsInserted.Add(float64(inserted))
	p.metrics.ObservationsSkipped.Add(float64(skipped))
	p.metrics.IngestRuns.WithLabelValues("done").Inc()

	p.logger.Info("ingestion run complete",
		"station", stationID,
		"inserted", inserted,
		"skipped", skipped,
	)
	return inserted, nil
}

// ErrInvalidStation indicates the identifier resolved neither locally nor upstream.
var ErrInvalidStation = errors.New("invalid station")

// ensureStation returns the local station row for an identifier, resolving
// and creating it on first sight. Resolution failure creates no partial state.
func (p *Pipeline) ensureStation(ctx context.Context, stationID string) (domain.Station, error) {
	station, err := p.store.StationByNWSID(ctx, stationID)
	if err == nil {
		return station, nil
	}
	if !errors.Is(err, store.ErrStationMissing) {
		return domain.Station{}, err
	}

	meta, err := p.resolver.ResolveStation(ctx, stationID)
	if err != nil {
		return domain.Station{}, ErrInvalidStation
	}
	return p.store.CreateStation(ctx, meta)
}
