// Package httpapi exposes the read-only HTTP surface: health, readiness,
// Prometheus metrics, and the per-station aggregate endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
	"github.com/couchcryptid/nws-observation-ingest/internal/store"
)

// AggregateStore is the slice of the store the API reads from.
type AggregateStore interface {
	Ping(ctx context.Context) error
	StationByNWSID(ctx context.Context, nwsID string) (domain.Station, error)
	AvgTemperature(ctx context.Context, stationID int64, start, end time.Time) (*float64, error)
	WindSpeeds(ctx context.Context, stationID int64, start, end time.Time) ([]*float64, error)
}

// Server exposes health, readiness, metrics, and aggregate HTTP endpoints.
type Server struct {
	httpServer *http.Server
	store      AggregateStore
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, st AggregateStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  st,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/metrics/avg-temperature", s.handleAvgTemperature)
	mux.HandleFunc("GET /api/metrics/max-wind-delta", s.handleMaxWindDelta)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleAvgTemperature reports the average temperature (°C) for the selected
// station over the previous calendar week (Monday through Sunday, UTC).
func (s *Server) handleAvgTemperature(w http.ResponseWriter, r *http.Request) {
	station, ok := s.lookupStation(w, r)
	if !ok {
		return
	}

	start, end := domain.LastWeekRange()
	avg, err := s.store.AvgTemperature(r.Context(), station.ID, start, end)
	if err != nil {
		s.logger.Error("avg temperature query failed", "station", station.NWSID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"station":               station.NWSID,
		"last_week_monday":      domain.FormatTimestamp(start),
		"last_week_sunday":      domain.FormatTimestamp(end.AddDate(0, 0, -1)),
		"average_temperature_c": round2(avg),
	})
}

// handleMaxWindDelta reports the maximum absolute delta between consecutive
// wind-speed readings (km/h) over the trailing seven days.
func (s *Server) handleMaxWindDelta(w http.ResponseWriter, r *http.Request) {
	station, ok := s.lookupStation(w, r)
	if !ok {
		return
	}

	start, end := domain.TrailingWindow(domain.DefaultWindowDuration)
	speeds, err := s.store.WindSpeeds(r.Context(), station.ID, start, end)
	if err != nil {
		s.logger.Error("wind speed query failed", "station", station.NWSID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"station":              station.NWSID,
		"window_start":         domain.FormatTimestamp(start),
		"window_end":           domain.FormatTimestamp(end),
		"max_wind_speed_delta": round2(domain.MaxConsecutiveWindDelta(speeds)),
		"wind_speed_readings":  len(speeds),
	})
}

func (s *Server) lookupStation(w http.ResponseWriter, r *http.Request) (domain.Station, bool) {
	nwsID := r.URL.Query().Get("station")
	if nwsID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "station query parameter is required"})
		return domain.Station{}, false
	}

	station, err := s.store.StationByNWSID(r.Context(), nwsID)
	if errors.Is(err, store.ErrStationMissing) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown station"})
		return domain.Station{}, false
	}
	if err != nil {
		s.logger.Error("station lookup failed", "station", nwsID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return domain.Station{}, false
	}
	return station, true
}

// round2 rounds a nullable value to 2 decimal places, preserving null.
func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
