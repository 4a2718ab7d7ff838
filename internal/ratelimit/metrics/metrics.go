package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "openletter_ratelimit_decisions_total",
			Help: "Rate limit checks by policy and outcome (allowed, denied, error)",
		}, []string{"policy", "outcome"}),
	}
}

func (m *Metrics) Record(policy, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(policy, outcome).Inc()
}
