package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCalls tracks provider invocations per stage, dependency and outcome
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_provider_calls_total",
			Help: "Total number of signal provider calls",
		},
		[]string{"stage", "dependency", "outcome"},
	)

	// ProviderLatency tracks provider call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cascade_provider_latency_seconds",
			Help:    "Signal provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "dependency"},
	)

	// CacheRequests tracks signal cache lookups by result (hit, miss, store_hit)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_cache_requests_total",
			Help: "Total number of signal cache lookups",
		},
		[]string{"result"},
	)

	// CandidatesEliminated tracks eliminations per stage and reason
	CandidatesEliminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_candidates_eliminated_total",
			Help: "Total number of candidates eliminated",
		},
		[]string{"stage", "reason"},
	)

	// CandidatesQualified tracks candidates that survived every stage
	CandidatesQualified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cascade_candidates_qualified_total",
			Help: "Total number of qualified candidates",
		},
	)

	// LimiterInterval tracks the effective pacing interval per dependency
	LimiterInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cascade_limiter_interval_seconds",
			Help: "Effective minimum interval between calls to a dependency",
		},
		[]string{"dependency"},
	)

	// RunsTotal tracks Qualify runs by status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_runs_total",
			Help: "Total number of qualification runs",
		},
		[]string{"status"},
	)

	// RunDuration tracks wall time of Qualify runs
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cascade_run_duration_seconds",
			Help:    "Qualification run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// DBConnectionPoolUsage tracks candidate database pool usage in percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cascade_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool maximum",
		},
	)

	// CandidateQueueSize tracks queued candidates per status
	CandidateQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cascade_candidate_queue_size",
			Help: "Candidates in the postgres queue by status",
		},
		[]string{"status"},
	)
)
