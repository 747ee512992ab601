// Package metrics defines the Prometheus metric collectors shared by the
// indexer and the searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the problem search services.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	ExpansionTermsCount prometheus.Histogram
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	ModelReloadsTotal   *prometheus.CounterVec
	ModelDimension      prometheus.Gauge
	IndexBreakerState   prometheus.Gauge

	DocsScannedTotal    *prometheus.CounterVec
	PointsUpsertedTotal prometheus.Counter
	UpsertRetriesTotal  prometheus.Counter
	BatchFailuresTotal  *prometheus.CounterVec
	BuildDuration       *prometheus.HistogramVec
	VocabularySize      prometheus.Gauge
}

// New creates all collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them through Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (ok, zero_vector, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ExpansionTermsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "query_expansion_terms",
				Help:    "Number of distinct terms produced by synonym expansion.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits by cache.",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses by cache.",
			},
			[]string{"cache"},
		),
		ModelReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_reloads_total",
				Help: "Vocabulary/IDF model loads by status.",
			},
			[]string{"status"},
		),
		ModelDimension: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "model_dimension",
				Help: "Vocabulary size of the currently loaded model.",
			},
		),
		IndexBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vector_index_breaker_state",
				Help: "Query-path circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
		),
		DocsScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_documents_scanned_total",
				Help: "Documents read from the corpus by pass.",
			},
			[]string{"pass"},
		),
		PointsUpsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_points_upserted_total",
				Help: "Points successfully written to the vector index.",
			},
		),
		UpsertRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_upsert_retries_total",
				Help: "Failed vector index write attempts that were retried.",
			},
		),
		BatchFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_batch_failures_total",
				Help: "Chunks abandoned after exhausting retries, by stage.",
			},
			[]string{"stage"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_pass_duration_seconds",
				Help:    "Duration of each build pass in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"pass"},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_vocabulary_size",
				Help: "Vocabulary size of the last built model.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.ExpansionTermsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ModelReloadsTotal,
		m.ModelDimension,
		m.IndexBreakerState,
		m.DocsScannedTotal,
		m.PointsUpsertedTotal,
		m.UpsertRetriesTotal,
		m.BatchFailuresTotal,
		m.BuildDuration,
		m.VocabularySize,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
