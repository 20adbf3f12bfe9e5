// Package metrics provides Prometheus instrumentation for Rebound.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for Rebound. A nil *Metrics
// is valid and records nothing, so instrumentation can be left unwired in
// tests and tools.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	OpDuration      *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	RateLimitDenied *prometheus.CounterVec
	RemoteCalls     *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	ActiveRequests  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all Rebound metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	// Include default Go and process collectors
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebound_requests_total",
				Help: "Total HTTP requests by endpoint and status code.",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rebound_request_duration_seconds",
				Help:    "HTTP request latency distribution.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint"},
		),
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rebound_operation_duration_seconds",
				Help:    "Coaching operation latency including cache and fallback paths.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebound_cache_lookups_total",
				Help: "Response cache lookups by operation and result (hit/miss).",
			},
			[]string{"operation", "result"},
		),
		RateLimitDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebound_ratelimit_denied_total",
				Help: "Admissions denied by the sliding-window rate limiter.",
			},
			[]string{"operation"},
		),
		RemoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebound_remote_calls_total",
				Help: "Remote model calls by operation and outcome (attempt/failure).",
			},
			[]string{"operation", "outcome"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebound_fallbacks_total",
				Help: "Locally generated results by operation and reason.",
			},
			[]string{"operation", "reason"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rebound_active_requests",
				Help: "Number of requests currently being processed.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.OpDuration,
		m.CacheLookups,
		m.RateLimitDenied,
		m.RemoteCalls,
		m.Fallbacks,
		m.ActiveRequests,
	)

	return m
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed request's metrics.
func (m *Metrics) RecordRequest(endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveDuration records the end-to-end latency of a coaching operation.
func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordCacheHit counts a response-cache hit.
func (m *Metrics) RecordCacheHit(operation string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(operation, "hit").Inc()
}

// RecordCacheMiss counts a response-cache miss.
func (m *Metrics) RecordCacheMiss(operation string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(operation, "miss").Inc()
}

// RecordRateLimitDenial counts a denied admission.
func (m *Metrics) RecordRateLimitDenial(operation string) {
	if m == nil {
		return
	}
	m.RateLimitDenied.WithLabelValues(operation).Inc()
}

// RecordRemoteCall counts a remote model attempt.
func (m *Metrics) RecordRemoteCall(operation string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(operation, "attempt").Inc()
}

// RecordRemoteFailure counts a failed remote model call.
func (m *Metrics) RecordRemoteFailure(operation string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(operation, "failure").Inc()
}

// RecordFallback counts a locally generated result.
func (m *Metrics) RecordFallback(operation, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(operation, reason).Inc()
}

// Middleware returns an HTTP middleware that instruments requests.
func (m *Metrics) Middleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		m.RecordRequest(endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
