package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	RejectionsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_circuit_transitions_total",
			Help: "Total number of circuit state transitions by service and target state",
		}, []string{"service", "to"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_circuit_rejections_total",
			Help: "Total number of calls rejected by an open circuit",
		}, []string{"service"}),
	}
}

func (m *Metrics) ObserveTransition(service, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(service, to).Inc()
}

func (m *Metrics) ObserveRejection(service string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(service).Inc()
}
