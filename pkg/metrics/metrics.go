// Package metrics holds the Prometheus collectors exposed on /metrics.
// Every recorder is nil-safe so services can run without a registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "fueldrop"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// OrderMetrics tracks lifecycle transitions, assignment races and payments.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	assignments *prometheus.CounterVec
	payments    *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by outcome.",
	}, []string{"from", "to", "result"})
	assignments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_assignments_total",
		Help:      "Driver assignment attempts by outcome.",
	}, []string{"source", "result"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_payments_total",
		Help:      "Payment captures and refunds by method and outcome.",
	}, []string{"operation", "method", "result"})
	reg.MustRegister(transitions, assignments, payments)
	return &OrderMetrics{transitions: transitions, assignments: assignments, payments: payments}
}

func (m *OrderMetrics) Transition(from, to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) Assignment(source, result string) {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) Payment(operation, method, result string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(operation), normalizeLabel(method), normalizeLabel(result)).Inc()
}

// RealtimeMetrics tracks live connections and delivery drops.
type RealtimeMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Currently registered realtime connections.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_delivered_total",
		Help:      "Events queued onto a live connection.",
	}, []string{"type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_dropped_total",
		Help:      "Events dropped because the recipient was slow or offline.",
	}, []string{"reason"})
	reg.MustRegister(connections, delivered, dropped)
	return &RealtimeMetrics{connections: connections, delivered: delivered, dropped: dropped}
}

func (m *RealtimeMetrics) Connected() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Inc()
}

func (m *RealtimeMetrics) Disconnected() {
	if m == nil || m.connections == nil {
		return
	}
	m.connections.Dec()
}

func (m *RealtimeMetrics) Delivered(eventType string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RealtimeMetrics) Dropped(reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}
