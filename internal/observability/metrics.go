package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// sounding fetch pipeline.
type Metrics struct {
	FetchOutcomes      *prometheus.CounterVec // labels: outcome={success,no_data,failed}
	FetchDuration      prometheus.Histogram
	SoundingsPersisted prometheus.Counter
	StationsSynced     prometheus.Counter
	StoreBusyRetries   prometheus.Counter
	EventsPublished    prometheus.Counter
	PublishErrors      prometheus.Counter

	SessionRunning  prometheus.Gauge
	SessionDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "fetch_outcomes_total",
			Help:      "Detail fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sounding_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single detail fetch, including parsing.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SoundingsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "soundings_persisted_total",
			Help:      "Sounding rows written through the upsert path.",
		}),
		StationsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "stations_synced_total",
			Help:      "Catalog stations upserted by station sync.",
		}),
		StoreBusyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "store_busy_retries_total",
			Help:      "Write attempts retried due to SQLite lock contention.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "events_published_total",
			Help:      "Stored-sounding events published to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sounding_etl",
			Name:      "publish_errors_total",
			Help:      "Failed stored-sounding event publishes.",
		}),
		SessionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sounding_etl",
			Name:      "session_running",
			Help:      "1 while a fetch session is active, 0 otherwise.",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sounding_etl",
			Name:      "session_duration_seconds",
			Help:      "Duration of a complete fetch session including persistence.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	prometheus.MustRegister(
		m.FetchOutcomes,
		m.FetchDuration,
		m.SoundingsPersisted,
		m.StationsSynced,
		m.StoreBusyRetries,
		m.EventsPublished,
		m.PublishErrors,
		m.SessionRunning,
		m.SessionDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FetchOutcomes:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "fetch_outcomes_total"}, []string{"outcome"}),
		FetchDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sounding_etl", Name: "fetch_duration_seconds"}),
		SoundingsPersisted: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "soundings_persisted_total"}),
		StationsSynced:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "stations_synced_total"}),
		StoreBusyRetries:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "store_busy_retries_total"}),
		EventsPublished:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "events_published_total"}),
		PublishErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sounding_etl", Name: "publish_errors_total"}),
		SessionRunning:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sounding_etl", Name: "session_running"}),
		SessionDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sounding_etl", Name: "session_duration_seconds"}),
	}
}
