package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics provides Prometheus-compatible metrics for the pipeline
type PipelineMetrics struct {
	// Run metrics
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	pagesVisited    prometheus.Counter
	candidatesFound prometheus.Counter

	// Fetch metrics
	fetchTotal      *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	fetchRetries    prometheus.Counter
	fetchDuration   *prometheus.HistogramVec
	fetchesInFlight prometheus.Gauge

	// Extraction metrics
	recordsExtracted prometheus.Counter
	parseFailures    *prometheus.CounterVec

	// Store metrics
	upsertsTotal  *prometheus.CounterVec
	storeFailures prometheus.Counter

	// Registry for all metrics
	registry *prometheus.Registry
}

// NewPipelineMetrics creates a new Prometheus metrics instance
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	m := &PipelineMetrics{
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoria_runs_total",
				Help: "Total number of scrape runs by termination reason",
			},
			[]string{"reason"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autoria_run_duration_seconds",
				Help:    "Duration of scrape runs in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
			},
		),

		pagesVisited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoria_pages_visited_total",
				Help: "Total number of listing pages visited",
			},
		),

		candidatesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoria_candidates_found_total",
				Help: "Total number of detail-page candidates discovered",
			},
		),

		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoria_fetch_total",
				Help: "Total number of page fetches by page kind",
			},
			[]string{"kind"},
		),

		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoria_fetch_failures_total",
				Help: "Total number of failed page fetches by kind and error type",
			},
			[]string{"kind", "error_type"},
		),

		fetchRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoria_fetch_retries_total",
				Help: "Total number of fetch retry attempts",
			},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoria_fetch_duration_seconds",
				Help:    "Duration of page fetches in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),

		fetchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "autoria_fetches_in_flight",
				Help: "Number of page fetches currently in flight",
			},
		),

		recordsExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoria_records_extracted_total",
				Help: "Total number of car records extracted from detail pages",
			},
		),

		parseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoria_parse_failures_total",
				Help: "Total number of extraction failures by stage",
			},
			[]string{"stage"},
		),

		upsertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoria_upserts_total",
				Help: "Total number of store upserts by outcome",
			},
			[]string{"outcome"},
		),

		storeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "autoria_store_failures_total",
				Help: "Total number of store failures",
			},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.pagesVisited,
		m.candidatesFound,
		m.fetchTotal,
		m.fetchFailures,
		m.fetchRetries,
		m.fetchDuration,
		m.fetchesInFlight,
		m.recordsExtracted,
		m.parseFailures,
		m.upsertsTotal,
		m.storeFailures,
	)

	return m
}

// RecordRun records a completed run
func (m *PipelineMetrics) RecordRun(reason string, duration time.Duration) {
	m.runsTotal.WithLabelValues(reason).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordPageVisited records one listing page visit
func (m *PipelineMetrics) RecordPageVisited() {
	m.pagesVisited.Inc()
}

// RecordCandidates records discovered candidates
func (m *PipelineMetrics) RecordCandidates(n int) {
	m.candidatesFound.Add(float64(n))
}

// FetchStarted marks a fetch as in flight
func (m *PipelineMetrics) FetchStarted(kind string) {
	m.fetchTotal.WithLabelValues(kind).Inc()
	m.fetchesInFlight.Inc()
}

// FetchFinished records a finished fetch
func (m *PipelineMetrics) FetchFinished(kind string, duration time.Duration) {
	m.fetchesInFlight.Dec()
	m.fetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFetchFailure records a failed fetch
func (m *PipelineMetrics) RecordFetchFailure(kind, errorType string) {
	m.fetchFailures.WithLabelValues(kind, errorType).Inc()
}

// RecordFetchRetry records a retry attempt
func (m *PipelineMetrics) RecordFetchRetry() {
	m.fetchRetries.Inc()
}

// RecordExtraction records a successfully extracted record
func (m *PipelineMetrics) RecordExtraction() {
	m.recordsExtracted.Inc()
}

// RecordParseFailure records an extraction failure
func (m *PipelineMetrics) RecordParseFailure(stage string) {
	m.parseFailures.WithLabelValues(stage).Inc()
}

// RecordUpsert records an upsert outcome (inserted, updated, unchanged)
func (m *PipelineMetrics) RecordUpsert(outcome string) {
	m.upsertsTotal.WithLabelValues(outcome).Inc()
}

// RecordStoreFailure records a store failure
func (m *PipelineMetrics) RecordStoreFailure() {
	m.storeFailures.Inc()
}

// GetRegistry returns the Prometheus registry
func (m *PipelineMetrics) GetRegistry() *prometheus.Registry {
	return m.registry
}
