// Package metrics provides Prometheus metrics for monitoring the analytics engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_analysis_passes_total",
			Help: "Total number of analysis passes executed",
		},
		[]string{"pass"},
	)
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipepulse_analysis_duration_seconds",
			Help:    "Analysis pass duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"pass"},
	)
	AdapterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_adapter_errors_total",
			Help: "Total number of upstream telemetry calls that failed",
		},
		[]string{"operation"},
	)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_cache_requests_total",
			Help: "Aggregate cache lookups by result",
		},
		[]string{"result"},
	)
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipepulse_cache_invalidations_total",
			Help: "Total number of explicit aggregate cache invalidations",
		},
	)
	LedgerWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_ledger_writes_total",
			Help: "Deployment and incident writes by kind and result",
		},
		[]string{"kind", "result"},
	)
	DoraCalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_dora_calculations_total",
			Help: "Total number of DORA snapshot calculations",
		},
		[]string{"result"},
	)
	TrendPointsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_trend_points_recorded_total",
			Help: "Total number of trend data points written",
		},
		[]string{"metric"},
	)
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_events_processed_total",
			Help: "Total number of consumed events by type and result",
		},
		[]string{"type", "result"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipepulse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipepulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordAnalysisPass(pass string, duration time.Duration) {
	AnalysisPasses.WithLabelValues(pass).Inc()
	AnalysisDuration.WithLabelValues(pass).Observe(duration.Seconds())
}

func RecordAdapterError(operation string) {
	AdapterErrors.WithLabelValues(operation).Inc()
}

func RecordCacheHit() {
	CacheRequests.WithLabelValues("hit").Inc()
}

func RecordCacheMiss() {
	CacheRequests.WithLabelValues("miss").Inc()
}

func RecordCacheError() {
	CacheRequests.WithLabelValues("error").Inc()
}

func RecordCacheInvalidation() {
	CacheInvalidations.Inc()
}

func RecordLedgerWrite(kind string, err error) {
	LedgerWrites.WithLabelValues(kind, resultLabel(err)).Inc()
}

func RecordDoraCalculation(err error) {
	DoraCalculations.WithLabelValues(resultLabel(err)).Inc()
}

func RecordTrendPoint(metric string) {
	TrendPointsRecorded.WithLabelValues(metric).Inc()
}

func RecordEventProcessed(eventType string, err error) {
	EventsProcessed.WithLabelValues(eventType, resultLabel(err)).Inc()
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
