package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAnalysisPass(t *testing.T) {
	AnalysisPasses.Reset()
	AnalysisDuration.Reset()

	RecordAnalysisPass("flaky_tests", 2*time.Second)

	count := getCounterValue(t, AnalysisPasses, "flaky_tests")
	assert.Equal(t, 1.0, count, "pass counter should be 1")

	sum := getHistogramSum(t, AnalysisDuration, "flaky_tests")
	assert.Equal(t, 2.0, sum, "duration should be recorded")
}

func TestRecordAdapterError(t *testing.T) {
	AdapterErrors.Reset()

	RecordAdapterError("list_pipelines")
	RecordAdapterError("list_pipelines")

	count := getCounterValue(t, AdapterErrors, "list_pipelines")
	assert.Equal(t, 2.0, count)
}

func TestCacheCounters(t *testing.T) {
	CacheRequests.Reset()

	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheMiss()
	RecordCacheError()

	assert.Equal(t, 1.0, getCounterValue(t, CacheRequests, "hit"))
	assert.Equal(t, 2.0, getCounterValue(t, CacheRequests, "miss"))
	assert.Equal(t, 1.0, getCounterValue(t, CacheRequests, "error"))
}

func TestRecordCacheInvalidation(t *testing.T) {
	metric := &dto.Metric{}
	require.NoError(t, CacheInvalidations.Write(metric))
	before := metric.Counter.GetValue()

	RecordCacheInvalidation()

	require.NoError(t, CacheInvalidations.Write(metric))
	assert.Equal(t, before+1, metric.Counter.GetValue())
}

func TestResultLabels(t *testing.T) {
	LedgerWrites.Reset()
	DoraCalculations.Reset()
	EventsProcessed.Reset()

	tests := []struct {
		name   string
		err    error
		result string
	}{
		{name: "success", err: nil, result: "success"},
		{name: "failure", err: errors.New("store down"), result: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordLedgerWrite("deployment", tt.err)
			RecordDoraCalculation(tt.err)
			RecordEventProcessed("pipeline_completed", tt.err)

			assert.Equal(t, 1.0, getCounterValue(t, LedgerWrites, "deployment", tt.result))
			assert.Equal(t, 1.0, getCounterValue(t, DoraCalculations, tt.result))
			assert.Equal(t, 1.0, getCounterValue(t, EventsProcessed, "pipeline_completed", tt.result))
		})
	}
}

func TestRecordTrendPoint(t *testing.T) {
	TrendPointsRecorded.Reset()

	RecordTrendPoint("pipeline_count")

	assert.Equal(t, 1.0, getCounterValue(t, TrendPointsRecorded, "pipeline_count"))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	tests := []struct {
		name     string
		method   string
		endpoint string
		status   string
		duration time.Duration
	}{
		{
			name:     "successful GET",
			method:   "GET",
			endpoint: "/api/insights/summary",
			status:   "200",
			duration: 50 * time.Millisecond,
		},
		{
			name:     "failed POST",
			method:   "POST",
			endpoint: "/api/dora/:id/calculate",
			status:   "500",
			duration: 100 * time.Millisecond,
		},
		{
			name:     "not found",
			method:   "GET",
			endpoint: "/unknown",
			status:   "404",
			duration: 10 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordHTTPRequest(tt.method, tt.endpoint, tt.status, tt.duration)

			count := getCounterValue(t, HTTPRequestsTotal, tt.method, tt.endpoint, tt.status)
			assert.Greater(t, count, 0.0, "request counter should be incremented")

			sum := getHistogramSum(t, HTTPRequestDuration, tt.method, tt.endpoint)
			assert.Greater(t, sum, 0.0, "duration should be recorded")
		})
	}
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	err = c.Write(metric)
	require.NoError(t, err)
	return metric.Counter.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	err = h.Write(metric)
	require.NoError(t, err)
	return metric.Histogram.GetSampleSum()
}
