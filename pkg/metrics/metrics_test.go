package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.registry == nil {
		t.Fatal("registry is nil")
	}
}

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/v1/plan", 200, 50*time.Millisecond)
	m.RecordRequest("/v1/plan", 200, 100*time.Millisecond)
	m.RecordRequest("/v1/plan", 400, 5*time.Millisecond)

	// Check counter
	val := counterValue(t, m.RequestsTotal, "endpoint", "/v1/plan", "status", "200")
	if val != 2 {
		t.Errorf("expected 2 requests with status 200, got %f", val)
	}

	val = counterValue(t, m.RequestsTotal, "endpoint", "/v1/plan", "status", "400")
	if val != 1 {
		t.Errorf("expected 1 request with status 400, got %f", val)
	}
}

func TestCacheLookupCounters(t *testing.T) {
	m := New()
	m.RecordCacheHit("plan")
	m.RecordCacheHit("plan")
	m.RecordCacheMiss("plan")

	hits := counterValue(t, m.CacheLookups, "operation", "plan", "result", "hit")
	if hits != 2 {
		t.Errorf("expected 2 hits, got %f", hits)
	}

	misses := counterValue(t, m.CacheLookups, "operation", "plan", "result", "miss")
	if misses != 1 {
		t.Errorf("expected 1 miss, got %f", misses)
	}
}

func TestRemoteCallCounters(t *testing.T) {
	m := New()
	m.RecordRemoteCall("movement_analysis")
	m.RecordRemoteCall("movement_analysis")
	m.RecordRemoteFailure("movement_analysis")

	attempts := counterValue(t, m.RemoteCalls, "operation", "movement_analysis", "outcome", "attempt")
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %f", attempts)
	}

	failures := counterValue(t, m.RemoteCalls, "operation", "movement_analysis", "outcome", "failure")
	if failures != 1 {
		t.Errorf("expected 1 failure, got %f", failures)
	}
}

func TestFallbackCounters(t *testing.T) {
	m := New()
	m.RecordFallback("recommendation", "rate_limited")
	m.RecordFallback("recommendation", "rate_limited")
	m.RecordFallback("recommendation", "remote_error")
	m.RecordRateLimitDenial("recommendation")

	val := counterValue(t, m.Fallbacks, "operation", "recommendation", "reason", "rate_limited")
	if val != 2 {
		t.Errorf("expected 2 rate_limited fallbacks, got %f", val)
	}

	val = counterValue(t, m.Fallbacks, "operation", "recommendation", "reason", "remote_error")
	if val != 1 {
		t.Errorf("expected 1 remote_error fallback, got %f", val)
	}

	val = counterValue(t, m.RateLimitDenied, "operation", "recommendation")
	if val != 1 {
		t.Errorf("expected 1 denial, got %f", val)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	// All record methods must be no-ops on a nil receiver.
	m.RecordRequest("/v1/plan", 200, time.Millisecond)
	m.ObserveDuration("plan", time.Millisecond)
	m.RecordCacheHit("plan")
	m.RecordCacheMiss("plan")
	m.RecordRateLimitDenial("plan")
	m.RecordRemoteCall("plan")
	m.RecordRemoteFailure("plan")
	m.RecordFallback("plan", "rate_limited")

	called := false
	handler := m.Middleware("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Error("nil-metrics middleware did not call the handler")
	}
}

func TestMiddleware(t *testing.T) {
	m := New()

	handler := m.Middleware("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	val := counterValue(t, m.RequestsTotal, "endpoint", "/v1/plan", "status", "200")
	if val != 1 {
		t.Errorf("expected 1 request recorded, got %f", val)
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	m := New()

	handler := m.Middleware("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	val := counterValue(t, m.RequestsTotal, "endpoint", "/v1/plan", "status", "400")
	if val != 1 {
		t.Errorf("expected 1 request with status 400, got %f", val)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRequest("/v1/plan", 200, 10*time.Millisecond)
	m.ObserveDuration("plan", 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "rebound_requests_total") {
		t.Error("metrics output missing rebound_requests_total")
	}
	if !strings.Contains(body, "rebound_operation_duration_seconds") {
		t.Error("metrics output missing rebound_operation_duration_seconds")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("metrics output missing go runtime metrics")
	}
}

func TestActiveRequests(t *testing.T) {
	m := New()

	started := make(chan struct{})
	release := make(chan struct{})

	handler := m.Middleware("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/plan", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}()

	<-started

	var metric dto.Metric
	if err := m.ActiveRequests.Write(&metric); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("expected 1 active request, got %f", metric.GetGauge().GetValue())
	}

	close(release)
}

// counterValue extracts the value of a counter with the given label pairs.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labelPairs ...string) float64 {
	t.Helper()
	labels := prometheus.Labels{}
	for i := 0; i < len(labelPairs); i += 2 {
		labels[labelPairs[i]] = labelPairs[i+1]
	}
	counter, err := cv.GetMetricWith(labels)
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}
