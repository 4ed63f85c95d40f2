package nws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerClient_PassesThroughSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"properties": {"name": "Station"}, "geometry": {"coordinates": [-97.0, 35.0]}}`))
	}))
	defer srv.Close()

	b := NewBreakerClient(testClient(srv.URL), testLogger())
	meta, err := b.ResolveStation(context.Background(), "000SE")
	require.NoError(t, err)
	assert.Equal(t, "Station", meta.Name)
}

func TestBreakerClient_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // exceed client timeout
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testUserAgent, 10*time.Millisecond, observability.NewMetricsForTesting(), testLogger())
	b := NewBreakerClient(c, testLogger())

	for i := 0; i < 5; i++ {
		_, err := b.FetchObservations(context.Background(), "000SE", time.Now().Add(-time.Hour), time.Now(), 500)
		require.Error(t, err)
	}

	before := calls.Load()
	_, err := b.FetchObservations(context.Background(), "000SE", time.Now().Add(-time.Hour), time.Now(), 500)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, calls.Load(), "open circuit must not issue requests")
}

func TestBreakerClient_NotFoundDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"title": "Not Found"}`))
	}))
	defer srv.Close()

	b := NewBreakerClient(testClient(srv.URL), testLogger())

	for i := 0; i < 10; i++ {
		_, err := b.ResolveStation(context.Background(), "BOGUS")
		require.ErrorIs(t, err, ErrStationNotFound, "breaker must stay closed for valid not-found answers")
	}
}
