package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BlocksTotal     *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		BlocksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ddos_blocks_total",
			Help: "Total number of block entries written by subject kind",
		}, []string{"kind"}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ddos_rejections_total",
			Help: "Total number of requests rejected by abuse protection",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveBlock(kind string) {
	if m == nil {
		return
	}
	m.BlocksTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRejection(kind string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(kind).Inc()
}
