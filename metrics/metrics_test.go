package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAnalysis(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	require.NoError(t, err)

	m.RecordAnalysis("Moderate", 83, 2)
	m.RecordAnalysis("Moderate", 76, 2)
	m.RecordAnalysis("Good", 100, 0)
	m.RecordAnalysisFailure("detector_failure")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.analysesTotal.WithLabelValues("Moderate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.analysesTotal.WithLabelValues("Good")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.analysisFailures.WithLabelValues("detector_failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAnalysis("Good", 100, 0)
		m.RecordAnalysisFailure("x")
		m.ObserveDetector(time.Second)
		m.RecordDelete("ok")
		m.RecordAuthFailure("missing")
		m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordAuthFailure("invalid")
	m.RecordHTTPRequest("POST", "/api/analyze", 201, 150*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `surfaceinspect_auth_failures_total{reason="invalid"} 1`)
	assert.Contains(t, body, `surfaceinspect_http_requests_total{method="POST",route="/api/analyze",status_code="201"} 1`)
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)
	_, err = New(registry)
	assert.Error(t, err)
}
