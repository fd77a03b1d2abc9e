// Package metrics defines the Prometheus metric collectors used by the index
// and the search surface and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search result labels.
const (
	ResultOK          = "ok"
	ResultTooLarge    = "too_large"
	ResultSyntaxError = "syntax_error"
	ResultError       = "error"
)

// Metrics holds all Prometheus collectors for the index subsystem.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsDeletedTotal     prometheus.Counter
	IndexCommitsTotal    *prometheus.CounterVec
	TreeWalksTotal       *prometheus.CounterVec
	TreeWalkDuration     prometheus.Histogram
	LiveSnapshots        prometheus.Gauge
	IndexedDocuments     prometheus.Gauge
}

// New creates all collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps independent instances from colliding.
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
				Name: "vfs_search_queries_total",
				Help: "Total search queries by result (ok, too_large, syntax_error, error).",
			},
			[]string{"result"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vfs_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vfs_search_results_count",
				Help:    "Number of paths returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vfs_search_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vfs_search_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vfs_index_docs_indexed_total",
				Help: "Total documents upserted.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vfs_index_docs_deleted_total",
				Help: "Total documents removed.",
			},
		),
		IndexCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfs_index_commits_total",
				Help: "Total index commits by status.",
			},
			[]string{"status"},
		),
		TreeWalksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfs_index_tree_walks_total",
				Help: "Total tree walks by status.",
			},
			[]string{"status"},
		),
		TreeWalkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vfs_index_tree_walk_duration_seconds",
				Help:    "Duration of full tree walks in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		LiveSnapshots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfs_index_live_snapshots",
				Help: "Number of index snapshots not yet reclaimed.",
			},
		),
		IndexedDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfs_index_documents",
				Help: "Number of live documents in the current snapshot.",
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
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.IndexCommitsTotal,
		m.TreeWalksTotal,
		m.TreeWalkDuration,
		m.LiveSnapshots,
		m.IndexedDocuments,
	)

	return m
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
