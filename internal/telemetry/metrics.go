package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ticketsync",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var TicketsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "sync",
		Name:      "tickets_ingested_total",
		Help:      "Total number of tickets created by SyncEngine, by tenant.",
	},
	[]string{"tenant_id"},
)

var TicketsUpdatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "sync",
		Name:      "tickets_updated_total",
		Help:      "Total number of tickets updated by SyncEngine, by tenant.",
	},
	[]string{"tenant_id"},
)

var TicketsDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "sync",
		Name:      "tickets_soft_deleted_total",
		Help:      "Total number of tickets soft-deleted by the deletion sweep, by tenant.",
	},
	[]string{"tenant_id"},
)

var IngestRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "orchestrator",
		Name:      "runs_total",
		Help:      "Total number of ingestion runs, by terminal status.",
	},
	[]string{"status"},
)

var IngestConflictsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "orchestrator",
		Name:      "lock_conflicts_total",
		Help:      "Total number of ingestion runs rejected due to an existing lock, by tenant.",
	},
	[]string{"tenant_id"},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "notifier",
		Name:      "notifications_total",
		Help:      "Total number of notification attempts, by sink and outcome.",
	},
	[]string{"sink", "outcome"},
)

var BreakerTripsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ticketsync",
		Subsystem: "breaker",
		Name:      "trips_total",
		Help:      "Total number of circuit breaker trips into the OPEN state, by breaker name.",
	},
	[]string{"name"},
)

var RateLimiterWaitSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "ticketsync",
		Subsystem: "ratelimiter",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for a rate limiter slot.",
		Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

var AnalyticsQueryDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "ticketsync",
		Subsystem: "analytics",
		Name:      "query_duration_seconds",
		Help:      "Duration of the single-pass dashboard analytics pipeline.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	},
)

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and all ticketsync-specific collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		TicketsIngestedTotal,
		TicketsUpdatedTotal,
		TicketsDeletedTotal,
		IngestRunsTotal,
		IngestConflictsTotal,
		NotificationsTotal,
		BreakerTripsTotal,
		RateLimiterWaitSeconds,
		AnalyticsQueryDuration,
	)
	return reg
}
