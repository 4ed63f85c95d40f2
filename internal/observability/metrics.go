package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the ingestion pipeline.
type Metrics struct {
	IngestRuns           *prometheus.CounterVec // labels: outcome={done,failed,empty}
	ObservationsFetched  prometheus.Counter
	ObservationsInserted prometheus.Counter
	ObservationsSkipped  prometheus.Counter

	IngestDuration prometheus.Histogram

	// Upstream NWS API metrics.
	UpstreamRequests    *prometheus.CounterVec   // labels: endpoint={station,observations}, outcome={success,error}
	UpstreamAPIDuration *prometheus.HistogramVec // labels: endpoint={station,observations}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.IngestRuns,
		m.ObservationsFetched,
		m.ObservationsInserted,
		m.ObservationsSkipped,
		m.IngestDuration,
		m.UpstreamRequests,
		m.UpstreamAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nws_ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by terminal outcome.",
		}, []string{"outcome"}),
		ObservationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nws_ingest",
			Name:      "observations_fetched_total",
			Help:      "Raw observation features fetched from the NWS API.",
		}),
		ObservationsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nws_ingest",
			Name:      "observations_inserted_total",
			Help:      "Observation rows actually inserted into the store.",
		}),
		ObservationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nws_ingest",
			Name:      "observations_skipped_total",
			Help:      "Candidate records skipped as duplicates or missing a timestamp.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nws_ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete resolve-fetch-normalize-persist run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nws_ingest",
			Name:      "upstream_requests_total",
			Help:      "NWS API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nws_ingest",
			Name:      "upstream_api_duration_seconds",
			Help:      "NWS API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
	}
}
