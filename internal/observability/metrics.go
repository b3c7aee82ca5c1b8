package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geosensor_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for discovery
// and ingestion.
type Metrics struct {
	IngestRunning prometheus.Gauge
	Runs          *prometheus.CounterVec // labels: outcome={success,error,cancelled}
	RunDuration   prometheus.Histogram

	// Discovery metrics.
	TilesProcessed    *prometheus.CounterVec // labels: source
	SensorsDiscovered *prometheus.CounterVec // labels: source
	SensorUpserts     *prometheus.CounterVec // labels: source, result={created,updated,error}

	// Remote API metrics.
	APIRequests *prometheus.CounterVec   // labels: source, operation, outcome={success,error,rejected}
	APIDuration *prometheus.HistogramVec // labels: source, operation

	// Series metrics.
	PagesFetched         *prometheus.CounterVec // labels: source
	PointsFetched        *prometheus.CounterVec // labels: source
	SentinelDropped      *prometheus.CounterVec // labels: source
	UnmappedFields       *prometheus.CounterVec // labels: source
	MeasurementsInserted *prometheus.CounterVec // labels: source
	IdentityViolations   prometheus.Counter

	// Sink and cache metrics.
	SinkErrors   *prometheus.CounterVec // labels: sink
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all ingestion metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_running",
			Help:      "1 while an ingestion run is in progress.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete discovery and ingestion run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}),
		TilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_processed_total",
			Help:      "Discovery tiles queried.",
		}, []string{"source"}),
		SensorsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensors_discovered_total",
			Help:      "Unique sensors found during discovery.",
		}, []string{"source"}),
		SensorUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_upserts_total",
			Help:      "Sensor upserts by result.",
		}, []string{"source", "result"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Remote API requests by operation and outcome.",
		}, []string{"source", "operation", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_duration_seconds",
			Help:      "Remote API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "operation"}),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Series pages fetched.",
		}, []string{"source"}),
		PointsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_fetched_total",
			Help:      "Series points returned after filtering.",
		}, []string{"source"}),
		SentinelDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentinel_dropped_total",
			Help:      "Values dropped because they carried the missing-value marker.",
		}, []string{"source"}),
		UnmappedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmapped_fields_total",
			Help:      "Source fields skipped because they map to no measurement type.",
		}, []string{"source"}),
		MeasurementsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_inserted_total",
			Help:      "Measurements persisted.",
		}, []string{"source"}),
		IdentityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_violations_total",
			Help:      "Records rejected because a surrogate id would be reassigned.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed measurement publications by sink.",
		}, []string{"sink"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_cache_total",
			Help:      "Parsed station table cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IngestRunning,
		m.Runs,
		m.RunDuration,
		m.TilesProcessed,
		m.SensorsDiscovered,
		m.SensorUpserts,
		m.APIRequests,
		m.APIDuration,
		m.PagesFetched,
		m.PointsFetched,
		m.SentinelDropped,
		m.UnmappedFields,
		m.MeasurementsInserted,
		m.IdentityViolations,
		m.SinkErrors,
		m.CacheLookups,
	}
}
