// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Normalization metrics
	RecordsNormalized   *prometheus.CounterVec
	RecordsDropped      *prometheus.CounterVec
	RecordsDeduplicated prometheus.Counter

	// Classification metrics
	EventsClassified *prometheus.CounterVec
	EventIssues      *prometheus.CounterVec

	// Price metrics
	PriceLookups       *prometheus.CounterVec
	PriceLookupLatency *prometheus.HistogramVec

	// Explorer metrics
	ExplorerRequests *prometheus.CounterVec
	ExplorerLatency  *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "eth_tax_ledger"
	}

	return &Metrics{
		// Normalization metrics
		RecordsNormalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "records_normalized_total",
			Help:      "Total number of raw records normalized by stream",
		}, []string{"kind"}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "records_dropped_total",
			Help:      "Total number of raw records dropped for missing fields by stream",
		}, []string{"kind"}),
		RecordsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "records_deduplicated_total",
			Help:      "Total number of exact duplicate records collapsed",
		}),

		// Classification metrics
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "events_total",
			Help:      "Total number of canonical events by category",
		}, []string{"category"}),
		EventIssues: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "issues_total",
			Help:      "Total number of event issues by kind",
		}, []string{"kind"}),

		// Price metrics
		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "lookups_total",
			Help:      "Total number of price lookups by source and result",
		}, []string{"source", "result"}),
		PriceLookupLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "lookup_latency_seconds",
			Help:      "Price lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		// Explorer metrics
		ExplorerRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "requests_total",
			Help:      "Total number of explorer API requests by action and status",
		}, []string{"action", "status"}),
		ExplorerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "explorer",
			Name:      "request_latency_seconds",
			Help:      "Explorer API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNormalized adds n normalized records of the given stream kind.
func RecordNormalized(kind string, n int) {
	DefaultMetrics.RecordsNormalized.WithLabelValues(kind).Add(float64(n))
}

// RecordDropped increments the dropped records counter.
func RecordDropped(kind string) {
	DefaultMetrics.RecordsDropped.WithLabelValues(kind).Inc()
}

// RecordDuplicates adds n collapsed duplicate records.
func RecordDuplicates(n int) {
	DefaultMetrics.RecordsDeduplicated.Add(float64(n))
}

// RecordEventClassified increments the per-category event counter.
func RecordEventClassified(category string) {
	DefaultMetrics.EventsClassified.WithLabelValues(category).Inc()
}

// RecordIssue increments the per-kind issue counter.
func RecordIssue(kind string) {
	DefaultMetrics.EventIssues.WithLabelValues(kind).Inc()
}

// RecordPriceLookup records a price lookup and its latency.
func RecordPriceLookup(source, result string, seconds float64) {
	DefaultMetrics.PriceLookups.WithLabelValues(source, result).Inc()
	DefaultMetrics.PriceLookupLatency.WithLabelValues(source).Observe(seconds)
}

// RecordExplorerRequest records an explorer API request.
func RecordExplorerRequest(action, status string, seconds float64) {
	DefaultMetrics.ExplorerRequests.WithLabelValues(action, status).Inc()
	DefaultMetrics.ExplorerLatency.WithLabelValues(action).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
	if status == "success" && phase == "run" {
		DefaultMetrics.LastSuccessfulPipeline.Set(float64(time.Now().Unix()))
	}
}

// RecordReportGenerated increments the reports generated counter.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}
