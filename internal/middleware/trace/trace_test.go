package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddlewareRecordsMetrics(t *testing.T) {
	m := NewMiddleware(func(r *http.Request) string { return r.RemoteAddr })

	var seenID string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		time.Sleep(2 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seenID == "" {
		t.Errorf("request id missing from handler context")
	}

	got := m.GetMetrics()
	if got.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", got.TotalRequests)
	}
	if got.AverageResponseTime <= 0 {
		t.Errorf("AverageResponseTime = %d, want > 0", got.AverageResponseTime)
	}
}

func TestGetRequestIDWithoutValue(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("GetRequestID = %q, want empty", id)
	}
}
