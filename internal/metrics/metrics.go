// Package metrics registers the causal cache's Prometheus series via
// promauto, following the teacher's naming convention
// (<service>_<subsystem>_<noun>) and its pattern of package-level vars
// initialized at import time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface metrics, kept from the teacher's generic series.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// GetRequestsByConsistency splits /get traffic by the consistency mode
	// a client requested, so SINGLE vs CROSS request volume can be
	// dashboarded without scraping request bodies.
	GetRequestsByConsistency = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_get_requests_by_consistency_total",
			Help: "Total number of /get requests, by requested consistency mode",
		},
		[]string{"consistency"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "causalcache_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "causalcache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Store sizes, one gauge per tier of the causal cache's data model.
	UnmergedStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "causalcache_unmerged_store_size",
			Help: "Number of keys in the unmerged store",
		},
	)

	CausalCutStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "causalcache_causal_cut_store_size",
			Help: "Number of keys in the causal-cut store",
		},
	)

	InPreparationSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "causalcache_in_preparation_size",
			Help: "Number of head keys currently in preparation",
		},
	)

	VersionStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "causalcache_version_store_size",
			Help: "Number of client ids with pinned versions",
		},
	)

	// Dependency resolution counters.
	DependencyGetTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "causalcache_dependency_get_total",
			Help: "Total number of asynchronous KVS gets issued to resolve a dependency",
		},
	)

	DependencyRegetTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "causalcache_dependency_reget_total",
			Help: "Total number of KVS re-gets issued because a cover-map entry was still unsatisfied",
		},
	)

	InPrepAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "causalcache_inprep_age_seconds",
			Help: "Age in seconds of the oldest unresolved in-preparation closure, by head key",
		},
		[]string{"head_key"},
	)

	// Migration and report counters.
	MigrationPromotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "causalcache_migration_promoted_total",
			Help: "Total number of keys promoted to the causal-cut store by the periodic migration handler",
		},
	)

	KeySetReportTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "causalcache_keyset_report_total",
			Help: "Total number of periodic key-set reports sent to the KVS",
		},
	)

	// KVS client operation metrics.
	KVSOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_kvs_operations_total",
			Help: "Total number of operations issued to the backing KVS client",
		},
		[]string{"operation", "status"},
	)

	// Peer transport metrics.
	PeerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_peer_requests_total",
			Help: "Total number of versioned-key requests exchanged with peer caches",
		},
		[]string{"direction", "status"},
	)

	// Rate limiting metrics, kept from the teacher.
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_ratelimit_exceeded_total",
			Help: "Total number of requests that exceeded the rate limit, by limiter type",
		},
		[]string{"limiter_type"},
	)

	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalcache_ratelimit_requests_total",
			Help: "Total number of rate-limited requests, by limiter type and outcome",
		},
		[]string{"limiter_type", "outcome"},
	)

	// BuildInfo exposes version metadata as a labeled gauge, kept from
	// the teacher's own build-info pattern.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "causalcache_build_info",
			Help: "Build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
