package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes for outbox rows.
const (
	PublishPublished    = "published"
	PublishRetried      = "retried"
	PublishDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher loop.
type OutboxMetrics struct {
	rows    *prometheus.CounterVec
	batch   prometheus.Histogram
	latency prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "rows_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_rows",
		Help:      "Rows claimed per publisher batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Time between the outbox write and a confirmed publish.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	reg.MustRegister(rows, batch, latency)
	return &OutboxMetrics{rows: rows, batch: batch, latency: latency}
}

// ObserveRow counts one handled row.
func (m *OutboxMetrics) ObserveRow(eventType, outcome string) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveBatch records how many rows a batch claimed.
func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(float64(size))
}

// ObserveLag records the delay between creation and publish.
func (m *OutboxMetrics) ObserveLag(lag time.Duration) {
	if m == nil || m.latency == nil || lag < 0 {
		return
	}
	m.latency.Observe(lag.Seconds())
}
