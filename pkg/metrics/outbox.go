package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher throughput per topic.
type OutboxMetrics struct {
	duration  *prometheus.HistogramVec
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	dlq       *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Time spent publishing a single outbox event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events delivered to the broker.",
	}, []string{"topic"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Retryable outbox publish failures.",
	}, []string{"topic"})
	dlq := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox events moved to the dead letter table.",
	}, []string{"reason"})
	reg.MustRegister(duration, published, failed, dlq)
	return &OutboxMetrics{
		duration:  duration,
		published: published,
		failed:    failed,
		dlq:       dlq,
	}
}

// ObservePublish records the outcome and latency of one publish attempt.
func (m *OutboxMetrics) ObservePublish(topic string, took time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	topic = normalizeLabel(topic)
	m.duration.WithLabelValues(topic).Observe(took.Seconds())
	if err != nil {
		m.failed.WithLabelValues(topic).Inc()
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

// IncDeadLettered counts a row moved to outbox_dlq.
func (m *OutboxMetrics) IncDeadLettered(reason string) {
	if m == nil || m.dlq == nil {
		return
	}
	m.dlq.WithLabelValues(normalizeLabel(reason)).Inc()
}
