package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_checks_total",
			Help: "Total number of rate limit checks by metric",
		}, []string{"metric"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections by metric",
		}, []string{"metric"}),
	}
}

func (m *Metrics) ObserveCheck(metric string, allowed bool) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(metric).Inc()
	if !allowed {
		m.RejectionsTotal.WithLabelValues(metric).Inc()
	}
}
