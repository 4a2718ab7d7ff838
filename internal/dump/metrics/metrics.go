package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments dump ingestion runs.
type Metrics struct {
	Runs            *prometheus.CounterVec
	Records         prometheus.Counter
	Skipped         prometheus.Counter
	Batches         prometheus.Counter
	DownloadedBytes prometheus.Counter
	FlushDuration   prometheus.Histogram
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "openletter_dump_runs_total",
			Help: "Dump ingestion runs by outcome",
		}, []string{"outcome"}),
		Records: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_dump_records_total",
			Help: "Nation records written to the cache by dump ingestion",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_dump_records_skipped_total",
			Help: "Malformed nation records skipped during dump ingestion",
		}),
		Batches: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_dump_batches_total",
			Help: "Batch upserts flushed by dump ingestion",
		}),
		DownloadedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "openletter_dump_downloaded_bytes_total",
			Help: "Compressed bytes downloaded from the dump endpoint",
		}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "openletter_dump_flush_duration_seconds",
			Help:    "Latency of one batch upsert",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "openletter_dump_run_duration_seconds",
			Help:    "Wall time of a whole ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "openletter_dump_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion run",
		}),
	}
}

func (m *Metrics) RecordFlush(records int, d time.Duration) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.Records.Add(float64(records))
	m.FlushDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDownload(bytes int64) {
	if m == nil {
		return
	}
	m.DownloadedBytes.Add(float64(bytes))
}

func (m *Metrics) RecordRun(success bool, skipped int, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
		m.LastSuccess.Set(float64(at.Unix()))
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.Skipped.Add(float64(skipped))
	m.RunDuration.Observe(d.Seconds())
}
