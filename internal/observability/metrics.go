package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline and cache refresher.
type Metrics struct {
	RecordsIngested *prometheus.CounterVec   // labels: provider
	RecordsSkipped  *prometheus.CounterVec   // labels: provider
	CyclesFailed    *prometheus.CounterVec   // labels: provider, stage={fetch,normalize,store}
	CycleDuration   *prometheus.HistogramVec // labels: provider
	PollersRunning  prometheus.Gauge

	// Cache refresher metrics.
	CacheRefreshFailures prometheus.Counter
	CacheLastUpdated     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outage_aggregator",
			Name:      "records_ingested_total",
			Help:      "Total canonical records appended to the snapshot store, per provider.",
		}, []string{"provider"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outage_aggregator",
			Name:      "records_skipped_total",
			Help:      "Records dropped during normalization for malformed geometry, per provider.",
		}, []string{"provider"}),
		CyclesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outage_aggregator",
			Name:      "cycles_failed_total",
			Help:      "Poll cycles that failed, by provider and pipeline stage.",
		}, []string{"provider", "stage"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outage_aggregator",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-store cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		PollersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outage_aggregator",
			Name:      "pollers_running",
			Help:      "Number of active provider pollers.",
		}),
		CacheRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outage_aggregator",
			Name:      "cache_refresh_failures_total",
			Help:      "Cache refresh cycles that failed to query the store.",
		}),
		CacheLastUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outage_aggregator",
			Name:      "cache_last_updated_seconds",
			Help:      "Unix timestamp of the last successful cache refresh.",
		}),
	}

	prometheus.MustRegister(
		m.RecordsIngested,
		m.RecordsSkipped,
		m.CyclesFailed,
		m.CycleDuration,
		m.PollersRunning,
		m.CacheRefreshFailures,
		m.CacheLastUpdated,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsIngested:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "outage_aggregator", Name: "records_ingested_total"}, []string{"provider"}),
		RecordsSkipped:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "outage_aggregator", Name: "records_skipped_total"}, []string{"provider"}),
		CyclesFailed:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "outage_aggregator", Name: "cycles_failed_total"}, []string{"provider", "stage"}),
		CycleDuration:        prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "outage_aggregator", Name: "cycle_duration_seconds"}, []string{"provider"}),
		PollersRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "outage_aggregator", Name: "pollers_running"}),
		CacheRefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "outage_aggregator", Name: "cache_refresh_failures_total"}),
		CacheLastUpdated:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "outage_aggregator", Name: "cache_last_updated_seconds"}),
	}
}
