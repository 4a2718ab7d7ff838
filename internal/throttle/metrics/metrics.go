package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the outbound API throttle.
type Metrics struct {
	Calls       *prometheus.CounterVec
	Requeues    *prometheus.CounterVec
	WaitSeconds prometheus.Histogram
	QueueDepth  prometheus.Gauge
}

// New registers throttle metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "openletter_throttle_calls_total",
			Help: "Outbound API calls issued through the throttle, by label and outcome",
		}, []string{"label", "outcome"}),
		Requeues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "openletter_throttle_requeues_total",
			Help: "Calls requeued after the upstream signalled rate limiting",
		}, []string{"label"}),
		WaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "openletter_throttle_wait_seconds",
			Help:    "Time a call waited for its slot before being issued",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "openletter_throttle_queue_depth",
			Help: "Calls waiting in the throttle queue",
		}),
	}
}

func (m *Metrics) RecordCall(label, outcome string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(label, outcome).Inc()
}

func (m *Metrics) RecordRequeue(label string) {
	if m == nil {
		return
	}
	m.Requeues.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveWait(seconds float64) {
	if m == nil {
		return
	}
	m.WaitSeconds.Observe(seconds)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
