package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nudge/internal/services"
	"nudge/internal/storage"
)

// todayISO keeps seeded transactions inside the period the check endpoint
// evaluates, which is anchored to the current wall clock.
func todayISO() string {
	return time.Now().Format("2006-01-02")
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDispatcher) SendAlert(_ context.Context, _, _ string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls++
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeDispatcher) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "nudge.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	dispatcher := &fakeDispatcher{}
	svc := services.NewAlertService(repo, nil, dispatcher, nil)
	t.Cleanup(func() { svc.Close() })

	s := NewServer(":0", svc)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, dispatcher
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateTransactionRequiresUser(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions",
		`{"title":"Lunch","amount":"12.50","kind":"expense","date":"2026-09-05","source":"manual"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/transactions?user_id=u1",
		`{"title":"Lunch","amount":"12.50","kind":"expense","date":"2026-09-05","source":"manual"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created["id"] == "" {
		t.Fatalf("missing id in create response")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/transactions?user_id=u1&year=2026&month=9", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []transactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 || listed[0].Amount != "12.50" || listed[0].Title != "Lunch" {
		t.Errorf("unexpected list: %+v", listed)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/transactions/"+created["id"]+"?user_id=u1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/transactions/"+created["id"]+"?user_id=u1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestCreateTransactionInvalidData(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "bad amount",
			body: `{"title":"x","amount":"abc","kind":"expense","date":"2026-09-05","source":"manual"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad date",
			body: `{"title":"x","amount":"1.00","kind":"expense","date":"05/09/2026","source":"manual"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "bad kind",
			body: `{"title":"x","amount":"1.00","kind":"transfer","date":"2026-09-05","source":"manual"}`,
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "not json",
			body: `title=x`,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/transactions?user_id=u1", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCategoryLimitAndDelete(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/categories?user_id=u1",
		`{"name":"Food","kind":"expense","monthly_limit":"600.00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := created["id"]

	rec = doJSON(t, s, http.MethodPut, "/api/categories/"+id+"/limit?user_id=u1",
		`{"monthly_limit":"450.00"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("limit status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/categories?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []categoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed) != 1 || listed[0].MonthlyLimit != "450.00" {
		t.Errorf("unexpected list: %+v", listed)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/categories/missing/limit?user_id=u1",
		`{"monthly_limit":"450.00"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("limit on missing category status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/categories/"+id+"?user_id=u1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
}

func TestCreateCategoryReservedName(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/categories?user_id=u1",
		`{"name":"Uncategorized","kind":"expense","monthly_limit":"100.00"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	// A user who never configured alerting gets a disabled default.
	rec := doJSON(t, s, http.MethodGet, "/api/preferences?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var pref preferenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pref); err != nil {
		t.Fatalf("decode preference: %v", err)
	}
	if pref.Enabled {
		t.Errorf("default preference must be disabled: %+v", pref)
	}

	rec = doJSON(t, s, http.MethodPut, "/api/preferences?user_id=u1",
		`{"enabled":true,"notify_address":"u1@example.com","currency":"INR"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/preferences?user_id=u1", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &pref); err != nil {
		t.Fatalf("decode preference: %v", err)
	}
	if !pref.Enabled || pref.NotifyAddress != "u1@example.com" {
		t.Errorf("unexpected preference: %+v", pref)
	}
}

func TestPutPreferenceEnabledWithoutAddress(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPut, "/api/preferences?user_id=u1",
		`{"enabled":true,"notify_address":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestAlertCheckEndpoint(t *testing.T) {
	s, dispatcher := newTestServer(t)

	doJSON(t, s, http.MethodPut, "/api/preferences?user_id=u1",
		`{"enabled":true,"notify_address":"u1@example.com"}`)
	rec := doJSON(t, s, http.MethodPost, "/api/categories?user_id=u1",
		`{"name":"Transport","kind":"expense","monthly_limit":"250.00"}`)
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	doJSON(t, s, http.MethodPost, "/api/transactions?user_id=u1",
		`{"category_id":"`+created["id"]+`","title":"Fuel","amount":"220.00","kind":"expense","date":"`+todayISO()+`","source":"manual"}`)

	rec = doJSON(t, s, http.MethodPost, "/api/alerts/check?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if !out.Sent || len(out.Lines) != 1 {
		t.Errorf("unexpected check outcome: %+v", out)
	}
	if !strings.Contains(out.Lines[0], "Transport: 220.00 / 250.00 (88.0%)") {
		t.Errorf("unexpected alert line: %q", out.Lines[0])
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher calls = %d, want 1", dispatcher.calls)
	}
}

func TestAlertCheckDisabledUser(t *testing.T) {
	s, dispatcher := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/alerts/check?user_id=ghost", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check status = %d", rec.Code)
	}
	var out checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode check response: %v", err)
	}
	if out.Sent || len(out.Lines) != 0 {
		t.Errorf("disabled user must not alert: %+v", out)
	}
	if dispatcher.calls != 0 {
		t.Errorf("dispatcher must not be called")
	}
}

func TestAlertCheckAsyncWithoutQueue(t *testing.T) {
	s, dispatcher := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/alerts/check?user_id=u1&async=1", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if dispatcher.calls != 0 {
		t.Errorf("async path must not dispatch inline")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	doJSON(t, s, http.MethodGet, "/healthz", "")
	rec := doJSON(t, s, http.MethodGet, "/metricsz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	// The metrics request itself is counted before the handler runs.
	if out["total_requests"] < 2 {
		t.Errorf("total_requests = %d, want >= 2", out["total_requests"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPatch, "/api/transactions?user_id=u1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
		t.Errorf("Allow = %q", allow)
	}
}
