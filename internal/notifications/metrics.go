package notifications

import (
	"time"

	"github.com/bissquit/alert-garden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const subsystem = "notifications"

// Delivery outcomes used as the "outcome" label.
const (
	outcomeSent   = "sent"
	outcomeRetry  = "retry"
	outcomeFailed = "failed"
)

var (
	jobsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: subsystem,
		Name:      "jobs",
		Help:      "Notification jobs in the queue by status",
	}, []string{"status"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: subsystem,
		Name:      "deliveries_total",
		Help:      "Delivery attempts by channel type and outcome",
	}, []string{"channel_type", "outcome"})

	deliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: subsystem,
		Name:      "delivery_duration_seconds",
		Help:      "Webhook call duration per delivery attempt",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"channel_type"})

	jobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: subsystem,
		Name:      "jobs_claimed_total",
		Help:      "Jobs claimed by the worker; equals the sum of deliveries_total",
	})
)

func recordDelivery(channelType, outcome string, took time.Duration) {
	deliveriesTotal.WithLabelValues(channelType, outcome).Inc()
	deliveryDuration.WithLabelValues(channelType).Observe(took.Seconds())
}

// RecordQueueStats publishes a queue snapshot as gauges.
func RecordQueueStats(stats *QueueStats) {
	for status, n := range map[JobStatus]int64{
		JobStatusPending:    stats.Pending,
		JobStatusProcessing: stats.Processing,
		JobStatusSent:       stats.Sent,
		JobStatusFailed:     stats.Failed,
	} {
		jobsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
