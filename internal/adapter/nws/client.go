package nws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/nws-observation-ingest/internal/domain"
	"github.com/couchcryptid/nws-observation-ingest/internal/observability"
)

// ErrStationNotFound indicates the upstream API has no station for the
// requested identifier. It is a valid upstream answer, not a transport fault.
var ErrStationNotFound = errors.New("station not found")

// Client talks to the NWS public API. It resolves station metadata and
// fetches time-ranged observation features.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWS API client.
func NewClient(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// ResolveStation confirms a station exists upstream and returns its metadata.
// Station properties and geometry are merged: coordinates come from the
// GeoJSON geometry ([lon, lat] order) and stay nil when geometry is absent.
func (c *Client) ResolveStation(ctx context.Context, stationID string) (domain.StationMetadata, error) {
	u := fmt.Sprintf("%s/stations/%s", c.baseURL, url.PathEscape(stationID))

	var resp stationResponse
	if err := c.getJSON(ctx, u, "station", &resp); err != nil {
		if errors.Is(err, errUpstreamRejected) {
			c.logger.Error("station could not be found in NWS API", "station", stationID)
			return domain.StationMetadata{}, fmt.Errorf("resolve station %s: %w", stationID, ErrStationNotFound)
		}
		return domain.StationMetadata{}, fmt.Errorf("resolve station %s: %w", stationID, err)
	}

	meta := domain.StationMetadata{
		NWSID:    stationID,
		Name:     resp.Properties.Name,
		Timezone: resp.Properties.TimeZone,
	}
	if len(resp.Geometry.Coordinates) == 2 {
		lon, lat := resp.Geometry.Coordinates[0], resp.Geometry.Coordinates[1]
		meta.Longitude = &lon
		meta.Latitude = &lat
	}

	c.logger.Info("station resolved", "station", stationID, "name", meta.Name)
	return meta, nil
}

// FetchObservations retrieves raw observation features for a station between
// start and end, bounded by limit. A single request is issued; results past
// the limit are truncated upstream and not followed up.
func (c *Client) FetchObservations(ctx context.Context, stationID string, start, end time.Time, limit int) ([]domain.RawObservation, error) {
	params := url.Values{
		"start": {domain.FormatTimestamp(start)},
		"end":   {domain.FormatTimestamp(end)},
		"limit": {strconv.Itoa(limit)},
	}
	u := fmt.Sprintf("%s/stations/%s/observations?%s", c.baseURL, url.PathEscape(stationID), params.Encode())

	c.logger.Info("requesting observations",
		"station", stationID,
		"start", params.Get("start"),
		"end", params.Get("end"),
		"limit", limit,
	)

	var resp observationsResponse
	if err := c.getJSON(ctx, u, "observations", &resp); err != nil {
		if errors.Is(err, errUpstreamRejected) {
			// Logged with upstream detail already; a failed fetch yields an
			// empty result rather than crossing the ingestion boundary.
			return nil, nil
		}
		return nil, fmt.Errorf("fetch observations for %s: %w", stationID, err)
	}

	if resp.Features == nil {
		c.logger.Warn("response is missing expected key 'features'", "station", stationID)
	}
	return resp.Features, nil
}

// errUpstreamRejected marks a non-success upstream status already logged with
// whatever problem detail the body carried.
var errUpstreamRejected = errors.New("upstream rejected request")

func (c *Client) getJSON(ctx context.Context, fullURL, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		c.logProblem(resp, endpoint)
		return errUpstreamRejected
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	c.metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return nil
}

// logProblem reports a non-success response, extracting the RFC 7807 problem
// fields the NWS API returns when the body parses as JSON.
func (c *Client) logProblem(resp *http.Response, endpoint string) {
	var problem problemDocument
	if err := json.NewDecoder(resp.Body).Decode(&problem); err != nil {
		c.logger.Error("API request failed and response could not be parsed as JSON",
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return
	}
	c.logger.Error("API request failed",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"title", problem.Title,
		"detail", problem.Detail,
		"type", problem.Type,
	)
}

// NWS API response types.

type stationResponse struct {
	Properties stationProperties `json:"properties"`
	Geometry   geometry          `json:"geometry"`
}

type stationProperties struct {
	Name     string  `json:"name"`
	TimeZone *string `json:"timeZone"`
}

type geometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

type observationsResponse struct {
	Features []domain.RawObservation `json:"features"`
}

type problemDocument struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
