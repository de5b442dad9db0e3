package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SuspensionsTotal *prometheus.CounterVec
	RejectionsTotal  prometheus.Counter
	CacheHitsTotal   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		SuspensionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_tenant_suspensions_total",
			Help: "Total number of automatic and manual tenant suspensions by cause",
		}, []string{"cause"}),
		RejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_tenant_rejections_total",
			Help: "Total number of requests rejected for inactive tenant status",
		}),
		CacheHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_tenant_status_cache_total",
			Help: "Tenant status cache lookups by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveSuspension(cause string) {
	if m == nil {
		return
	}
	m.SuspensionsTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveRejection() {
	if m == nil {
		return
	}
	m.RejectionsTotal.Inc()
}

func (m *Metrics) ObserveCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(outcome).Inc()
}
