package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics counts direct message outcomes.
type NotificationMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification attempts by outcome and undeliverable reason.",
	}, []string{"outcome", "reason"})
	reg.MustRegister(outcomes)
	return &NotificationMetrics{outcomes: outcomes}
}

func (m *NotificationMetrics) Observe(outcome, reason string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome), normalizeLabel(reason)).Inc()
}
