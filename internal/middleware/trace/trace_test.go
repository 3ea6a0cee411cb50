package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsAverage(t *testing.T) {
	m := NewMiddleware(nil)
	m.record(10 * time.Millisecond)
	m.record(30 * time.Millisecond)

	got := m.GetMetrics()
	if got.TotalRequests != 2 {
		t.Fatalf("expected 2 requests, got %d", got.TotalRequests)
	}
	if got.AverageResponseTime != 20000 {
		t.Fatalf("expected mean of 20000us, got %d", got.AverageResponseTime)
	}
}

func TestMetricsEmpty(t *testing.T) {
	got := NewMiddleware(nil).GetMetrics()
	if got.TotalRequests != 0 || got.AverageResponseTime != 0 {
		t.Fatalf("expected zero metrics, got %+v", got)
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewMiddleware(func(*http.Request) string { return "1.2.3.4" })

	var requestID string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/expenses", nil))
	}

	if got := m.GetMetrics().TotalRequests; got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
	if !strings.HasPrefix(requestID, "req_") {
		t.Fatalf("expected a generated request id, got %q", requestID)
	}
}
