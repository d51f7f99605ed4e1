package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BreakerMetrics exposes circuit breaker transitions of the outbound HTTP clients.
type BreakerMetrics struct {
	open        *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewBreakerMetrics registers the breaker collectors on reg (default registry when nil).
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &BreakerMetrics{
		open: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pumpkit",
			Subsystem: "http",
			Name:      "circuit_open",
			Help:      "1 while the named circuit breaker rejects requests",
		}, []string{"breaker"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpkit",
			Subsystem: "http",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{"breaker", "from", "to"}),
	}
}

// ObserveTransition records a breaker moving between states.
func (m *BreakerMetrics) ObserveTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, from, to).Inc()
	if to == "open" {
		m.open.WithLabelValues(name).Set(1)
	} else {
		m.open.WithLabelValues(name).Set(0)
	}
}
