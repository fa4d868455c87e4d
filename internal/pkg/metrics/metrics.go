// Package metrics provides Prometheus metrics shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "alertgarden"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// CronRunsTotal counts cron job invocations by job and outcome.
	CronRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cron",
			Name:      "runs_total",
			Help:      "Total cron job invocations by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	// CronRunDuration tracks how long a cron job invocation takes.
	CronRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "cron",
			Name:      "run_duration_seconds",
			Help:      "Cron job invocation duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job"},
	)
)

// ObserveCronRun records the outcome and duration of one cron job invocation.
func ObserveCronRun(job string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	CronRunsTotal.WithLabelValues(job, outcome).Inc()
	CronRunDuration.WithLabelValues(job).Observe(seconds)
}
