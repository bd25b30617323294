// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metadata cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinematch_metadata_cache_hits_total",
			Help: "Metadata lookups served from the cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinematch_metadata_cache_misses_total",
			Help: "Metadata lookups not found in the cache (including wrong-arity entries)",
		},
	)

	CacheWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cinematch_metadata_cache_write_errors_total",
			Help: "Failed writes to the metadata cache store",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinematch_metadata_cache_entries",
			Help: "Number of records in the metadata cache",
		},
	)

	// TMDB requests
	TMDBRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinematch_tmdb_requests_total",
			Help: "Requests sent to TMDB by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: success, error
	)

	TMDBRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinematch_tmdb_request_duration_seconds",
			Help:    "Latency of TMDB requests including transport retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	Placeholders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinematch_metadata_placeholders_total",
			Help: "Placeholder records returned instead of fetched metadata",
		},
		[]string{"reason"}, // invalid_id, exhausted, circuit_open
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinematch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Recommendations
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinematch_recommendations_total",
			Help: "Recommendation queries by result",
		},
		[]string{"result"}, // found, not_found
	)

	ArtifactReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinematch_artifact_reloads_total",
			Help: "Similarity artifact reloads by outcome",
		},
		[]string{"outcome"},
	)

	// HTTP API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinematch_http_requests_total",
			Help: "HTTP API requests by route and status class",
		},
		[]string{"route", "status"},
	)
)
