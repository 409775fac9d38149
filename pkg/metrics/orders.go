package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts lifecycle transitions and rejected requests.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_transitions_total",
		Help: "Orders entering each status.",
	}, []string{"status"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejections_total",
		Help: "Order operations rejected before any state change.",
	}, []string{"reason"})
	reg.MustRegister(transitions, rejections)
	return &OrderMetrics{transitions: transitions, rejections: rejections}
}

func (m *OrderMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *OrderMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}
