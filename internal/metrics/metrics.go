// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	threadsTotalCounter      *prometheus.CounterVec
	stepEventsCounter        *prometheus.CounterVec
	analyzeDurationMetric    prometheus.Histogram
	reconcileDurationMetric  prometheus.Histogram
	webhookDeliveriesCounter *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		threadsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threads_total",
				Help: "Total number of thread status transitions by status.",
			},
			[]string{"status"},
		)

		stepEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "step_events_total",
				Help: "Total number of ingested step events by status.",
			},
			[]string{"status"},
		)

		analyzeDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "thread_analyze_duration_seconds",
				Help:    "Duration of thread status analysis in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		reconcileDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconcile_pass_duration_seconds",
				Help:    "Duration of reconciler passes in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		webhookDeliveriesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Total number of terminal webhook deliveries by outcome.",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			threadsTotalCounter,
			stepEventsCounter,
			analyzeDurationMetric,
			reconcileDurationMetric,
			webhookDeliveriesCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.ThreadStatus{
			domain.ThreadIdle,
			domain.ThreadPending,
			domain.ThreadRunning,
			domain.ThreadCompleted,
			domain.ThreadFailed,
			domain.ThreadCancelled,
		} {
			threadsTotalCounter.WithLabelValues(string(status))
		}

		for _, status := range []domain.MessageStatus{
			domain.MessagePending,
			domain.MessageRunning,
			domain.MessageCompleted,
			domain.MessageFailed,
			domain.MessageCancelled,
		} {
			stepEventsCounter.WithLabelValues(string(status))
		}

		for _, outcome := range []string{"delivered", "failed"} {
			webhookDeliveriesCounter.WithLabelValues(outcome)
		}
	})
}

func IncThreadStatus(status string) {
	Init()
	threadsTotalCounter.WithLabelValues(status).Inc()
}

func IncStepEvent(status string) {
	Init()
	if status == "" {
		status = "unspecified"
	}
	stepEventsCounter.WithLabelValues(status).Inc()
}

func ObserveAnalyzeDuration(d time.Duration) {
	Init()
	analyzeDurationMetric.Observe(d.Seconds())
}

func ObserveReconcileDuration(d time.Duration) {
	Init()
	reconcileDurationMetric.Observe(d.Seconds())
}

func IncWebhookDelivery(outcome string) {
	Init()
	webhookDeliveriesCounter.WithLabelValues(outcome).Inc()
}
