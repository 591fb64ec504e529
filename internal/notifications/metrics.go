package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "evercal"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notifications by dispatch status",
		},
		[]string{"status"},
	)

	dispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "dispatched_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send a notification through the delivery channel",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	queueFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total notifications fetched as due (before send attempt)",
		},
	)

	cyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "cycles_skipped_total",
			Help:      "Dispatch cycles skipped because a cycle was still in flight",
		},
	)
)

// recordDispatched records a delivery attempt outcome (success, retry, failed).
func recordDispatched(outcome string) {
	dispatchedTotal.WithLabelValues(outcome).Inc()
}

// recordSendDuration records how long one delivery-channel call took.
func recordSendDuration(d time.Duration) {
	sendDuration.Observe(d.Seconds())
}

// recordQueueFetched records the number of due records selected in a cycle.
func recordQueueFetched(count int) {
	queueFetched.Add(float64(count))
}

// recordCycleSkipped records a skipped timer firing.
func recordCycleSkipped() {
	cyclesSkipped.Inc()
}

// RecordQueueStats updates queue size gauges.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("error").Set(float64(stats.Error))
}
