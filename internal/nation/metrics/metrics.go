package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments nation cache lookups.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	LiveLookups    *prometheus.CounterVec
	Invalidations  prometheus.Counter
	LookupDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_nation_cache_hits_total",
			Help: "Nation display lookups served from the cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_nation_cache_misses_total",
			Help: "Nation display lookups with no cache entry",
		}),
		LiveLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "openletter_nation_live_lookups_total",
			Help: "Live API lookups performed on cache miss, by outcome",
		}, []string{"outcome"}),
		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_nation_cache_invalidations_total",
			Help: "Cache entries deleted because the upstream no longer resolves the name",
		}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "openletter_nation_lookup_duration_seconds",
			Help:    "Latency of nation display lookups",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordCacheHit(seconds float64) {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
	m.LookupDuration.Observe(seconds)
}

func (m *Metrics) RecordCacheMiss(seconds float64) {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
	m.LookupDuration.Observe(seconds)
}

func (m *Metrics) RecordLiveLookup(outcome string) {
	if m == nil {
		return
	}
	m.LiveLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInvalidation() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}
