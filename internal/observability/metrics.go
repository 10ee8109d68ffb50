package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard workflow.
type Metrics struct {
	// Lookup metrics.
	Lookups         *prometheus.CounterVec // labels: outcome={success,connection_failed,server_rejected,malformed_response}
	LookupsRejected prometheus.Counter
	LookupDuration  prometheus.Histogram
	LookupInFlight  prometheus.Gauge

	// Report metrics.
	Exports        *prometheus.CounterVec // labels: outcome={success,connection_failed,server_rejected,save_failed}
	ExportDuration prometheus.Histogram
	ReportBytes    prometheus.Histogram

	LogoIngestions  *prometheus.CounterVec // labels: outcome={success,rejected}
	EventsPublished *prometheus.CounterVec // labels: type, outcome={success,error}
}

// NewMetrics creates and registers all workflow metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Lookups,
		m.LookupsRejected,
		m.LookupDuration,
		m.LookupInFlight,
		m.Exports,
		m.ExportDuration,
		m.ReportBytes,
		m.LogoIngestions,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasador",
			Name:      "lookups_total",
			Help:      "Parcel lookups by outcome.",
		}, []string{"outcome"}),
		LookupsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasador",
			Name:      "lookups_rejected_concurrent_total",
			Help:      "Lookups refused because another lookup was in flight.",
		}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tasador",
			Name:      "lookup_duration_seconds",
			Help:      "Backend lookup duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LookupInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasador",
			Name:      "lookup_in_flight",
			Help:      "1 while a lookup is waiting on the backend, 0 otherwise.",
		}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasador",
			Name:      "report_exports_total",
			Help:      "Report exports by outcome.",
		}, []string{"outcome"}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tasador",
			Name:      "report_export_duration_seconds",
			Help:      "Report generation round trip in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ReportBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tasador",
			Name:      "report_size_bytes",
			Help:      "Size of generated PDF reports.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
		LogoIngestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasador",
			Name:      "logo_ingestions_total",
			Help:      "Logo uploads by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasador",
			Name:      "events_published_total",
			Help:      "Analysis events published by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}
