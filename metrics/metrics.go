// Package metrics provides Prometheus metrics for the inspection API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "surfaceinspect"

// Metrics contains the collectors for analysis, storage and auth outcomes.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	analysesTotal         *prometheus.CounterVec
	analysisFailures      *prometheus.CounterVec
	detectorDuration      prometheus.Histogram
	inspectionDeletes     *prometheus.CounterVec
	authFailures          *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	healthScoreHistogram  prometheus.Histogram
	detectionsPerAnalysis prometheus.Histogram
}

// New creates the collectors and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of completed analyses",
		},
		[]string{"severity"}, // Good, Moderate, Critical
	)

	m.analysisFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_failures_total",
			Help:      "Total number of failed analyses",
		},
		[]string{"reason"}, // bad_request, detector_failure, store_unavailable, ...
	)

	m.detectorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Time taken by the detector per image",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	m.inspectionDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspection_deletes_total",
			Help:      "Total number of inspection delete requests",
		},
		[]string{"status"},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected credentials",
		},
		[]string{"reason"}, // missing, invalid, unavailable
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.healthScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Distribution of computed health scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	m.detectionsPerAnalysis = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detections_per_analysis",
			Help:      "Number of detections above threshold per analysed image",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)
}

func (m *Metrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.analysesTotal,
		m.analysisFailures,
		m.detectorDuration,
		m.inspectionDeletes,
		m.authFailures,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.healthScoreHistogram,
		m.detectionsPerAnalysis,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAnalysis records a successful analysis
func (m *Metrics) RecordAnalysis(severity string, healthScore, detections int) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(severity).Inc()
	m.healthScoreHistogram.Observe(float64(healthScore))
	m.detectionsPerAnalysis.Observe(float64(detections))
}

func (m *Metrics) RecordAnalysisFailure(reason string) {
	if m == nil {
		return
	}
	m.analysisFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDetector(d time.Duration) {
	if m == nil {
		return
	}
	m.detectorDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDelete(status string) {
	if m == nil {
		return
	}
	m.inspectionDeletes.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request against its route pattern
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
