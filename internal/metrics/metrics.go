// Package metrics provides Prometheus metrics collection for the cheatsheet
// service. It tracks query traffic, model invocations, curation outcomes,
// and memory store activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dynamic_cheatsheet"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
// Model calls dominate, so the range stretches well past the HTTP defaults.
var LatencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 20.0, 30.0,
	60.0, 120.0, 180.0, 300.0,
}

// =============================================================================
// Query Metrics
// =============================================================================

var (
	// QueriesTotal counts queries processed per session operation.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries processed",
		},
		[]string{"operation", "mode", "status"},
	)

	// QueryLatency tracks end-to-end latency of session operations.
	QueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "End-to-end session operation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation", "mode"},
	)
)

// =============================================================================
// Invocation Metrics
// =============================================================================

var (
	// InvocationsTotal counts model invocations by purpose and outcome.
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of model invocations",
		},
		[]string{"provider", "purpose", "status"},
	)

	// InvocationRetries counts retry attempts beyond the first call.
	InvocationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_retries_total",
			Help:      "Total number of model invocation retries",
		},
		[]string{"provider", "purpose"},
	)

	// InvocationLatency tracks model call latency per attempt.
	InvocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_latency_seconds",
			Help:      "Model invocation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "purpose"},
	)
)

// =============================================================================
// Curation Metrics
// =============================================================================

var (
	// CurationsTotal counts curation rounds by result.
	CurationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curations_total",
			Help:      "Total number of curation rounds",
		},
		[]string{"result"},
	)

	// CurationEntries counts per-entry merge decisions.
	CurationEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curation_entries_total",
			Help:      "Entry-level merge decisions across curation rounds",
		},
		[]string{"action"},
	)

	// AnswerExtractionsTotal counts final-answer marker hits and misses.
	AnswerExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_extractions_total",
			Help:      "Final answer extraction outcomes",
		},
		[]string{"status"},
	)
)

// =============================================================================
// Memory Metrics
// =============================================================================

var (
	// SelectionSize tracks how many entries retrieval returns per query.
	SelectionSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_size",
			Help:      "Number of memory entries selected per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// SessionsActive tracks sessions currently held in the registry.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently resident in the session registry",
		},
	)

	// StoreOperations counts memory store calls by backend and outcome.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Memory store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// StorePoolConnections tracks connection pool state for SQL backends.
	StorePoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_pool_connections",
			Help:      "Store connection pool state",
		},
		[]string{"state"},
	)
)

// =============================================================================
// HTTP Metrics
// =============================================================================

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route", "method"},
	)

	// AuthFailuresTotal counts rejected authentication attempts.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Authentication rejections by reason",
		},
		[]string{"reason"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)
)

// =============================================================================
// Archive Metrics
// =============================================================================

var (
	// ArchiveUploadsTotal counts snapshot archive uploads by outcome.
	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "Cheatsheet snapshot archive uploads",
		},
		[]string{"status"},
	)

	// ArchiveQueueDepth tracks snapshots waiting for upload.
	ArchiveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_queue_depth",
			Help:      "Snapshots queued for archival",
		},
	)
)
