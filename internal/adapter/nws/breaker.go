package nws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
)

// BreakerClient wraps a Client with a circuit breaker so a misbehaving
// upstream fails fast instead of tying up every ingestion run in timeouts.
// It never retries: an open circuit surfaces as an immediate error, which a
// run treats like any other upstream failure.
type BreakerClient struct {
	inner *Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient creates a breaker decorator around an NWS client.
// ErrStationNotFound is a valid upstream answer and does not trip the breaker.
func NewBreakerClient(inner *Client, logger *slog.Logger) *BreakerClient {
	settings := gobreaker.Settings{
		Name:    "nws-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrStationNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &BreakerClient{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerClient) ResolveStation(ctx context.Context, stationID string) (domain.StationMetadata, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ResolveStation(ctx, stationID)
	})
	if err != nil {
		return domain.StationMetadata{}, err
	}
	return result.(domain.StationMetadata), nil
}

func (b *BreakerClient) FetchObservations(ctx context.Context, stationID string, start, end time.Time, limit int) ([]domain.RawObservation, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		obs, err := b.inner.FetchObservations(ctx, stationID, start, end, limit)
		if err != nil {
			return nil, err
		}
		return obs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RawObservation), nil
}
