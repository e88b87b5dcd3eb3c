package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"hourlog/internal/identity"
	"hourlog/internal/journal"
	"hourlog/internal/storage"
)

func setupTestServer(t *testing.T, provider identity.Provider) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}

	svc := journal.NewService(repo, nil)
	srv := NewServer(":0", svc, provider)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	return srv
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSetHourAndGetDay(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodPost, "/api/entries/set-hour",
		`{"date":"2024-03-12","hour":9,"text":"standup"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-hour status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/api/entries/day?date=2024-03-12", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("day status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Date    string         `json:"date"`
		Entries map[int]string `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode day response: %v", err)
	}
	if resp.Entries[9] != "standup" {
		t.Fatalf("entries[9] = %q, want %q", resp.Entries[9], "standup")
	}
}

func TestSetHourValidation(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing hour", `{"date":"2024-03-12","text":"x"}`, http.StatusBadRequest},
		{"invalid hour", `{"date":"2024-03-12","hour":24,"text":"x"}`, http.StatusUnprocessableEntity},
		{"invalid date", `{"date":"2024-02-30","hour":9,"text":"x"}`, http.StatusUnprocessableEntity},
		{"malformed body", `{"date":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/api/entries/set-hour", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSetManyBatch(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodPost, "/api/entries/set-many",
		`{"date":"2024-03-12","entries":[{"hour":9,"text":"standup"},{"hour":14,"text":"review"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-many status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/api/entries/day?date=2024-03-12", "")
	var resp struct {
		Entries map[int]string `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode day response: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries count = %d, want 2", len(resp.Entries))
	}
}

func TestMonthCountsInvalidation(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	doRequest(srv, http.MethodPost, "/api/entries/set-hour",
		`{"date":"2024-03-12","hour":9,"text":"standup"}`)

	counts := func() map[string]int {
		rec := doRequest(srv, http.MethodGet, "/api/entries/month-counts?year=2024&month=3", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("month-counts status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Counts map[string]int `json:"counts"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode month-counts response: %v", err)
		}
		return resp.Counts
	}

	if got := counts()["2024-03-12"]; got != 1 {
		t.Fatalf("count for 2024-03-12 = %d, want 1", got)
	}

	// A second write must invalidate the cached counts.
	doRequest(srv, http.MethodPost, "/api/entries/set-hour",
		`{"date":"2024-03-12","hour":15,"text":"pairing"}`)

	if got := counts()["2024-03-12"]; got != 2 {
		t.Fatalf("count for 2024-03-12 after second write = %d, want 2", got)
	}
}

func TestMonthCountsBadParams(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/entries/month-counts?year=abc&month=3", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doRequest(srv, http.MethodGet, "/api/entries/month-counts?year=2024&month=13", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestExportDownload(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	doRequest(srv, http.MethodPost, "/api/entries/set-hour",
		`{"date":"2024-03-12","hour":14,"text":"code review"}`)

	rec := doRequest(srv, http.MethodGet, "/api/export?start=2024-03-01&end=2024-03-31", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("Content-Type = %q, want text/markdown", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "journal-20240301-20240331.md") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# Journal Export") || !strings.Contains(body, "### 14:00") {
		t.Fatalf("unexpected export body:\n%s", body)
	}
}

func TestExportInvalidRange(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/export?start=2024-03-31&end=2024-03-01", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	rec = doRequest(srv, http.MethodGet, "/api/export?start=2024-03-01", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHeaderProviderUnauthenticated(t *testing.T) {
	srv := setupTestServer(t, identity.NewHeaderProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/entries/all", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHeaderProviderScopesUsers(t *testing.T) {
	srv := setupTestServer(t, identity.NewHeaderProvider(""))

	req := httptest.NewRequest(http.MethodPost, "/api/entries/set-hour",
		strings.NewReader(`{"date":"2024-03-12","hour":9,"text":"alice only"}`))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-hour status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/entries/day?date=2024-03-12", nil)
	req.Header.Set("X-User-ID", "bob")
	rec = httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	var resp struct {
		Entries map[int]string `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode day response: %v", err)
	}
	if len(resp.Entries) != 0 {
		t.Fatalf("bob sees %d entries, want 0", len(resp.Entries))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/entries/set-hour", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if allow := rec.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q, want POST", allow)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodPost, "/api/entries/set-hour",
		`{"date":"2024-03-12","hour":9,"text":"standup"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set-hour status = %d", rec.Code)
	}
	rec = doRequest(srv, http.MethodGet, "/api/entries/month-counts?year=2024&month=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("month-counts status = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var metrics struct {
		TotalRequests        int64 `json:"total_requests"`
		RateLimitClients     int64 `json:"rate_limit_clients"`
		SuspiciousRequests   int64 `json:"suspicious_requests"`
		MonthCountsCacheSize int   `json:"month_counts_cache_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.TotalRequests < 2 {
		t.Fatalf("total_requests = %d, want at least 2", metrics.TotalRequests)
	}
	if metrics.RateLimitClients < 1 {
		t.Fatalf("rate_limit_clients = %d, want at least 1", metrics.RateLimitClients)
	}
	if metrics.MonthCountsCacheSize != 1 {
		t.Fatalf("month_counts_cache_size = %d, want 1", metrics.MonthCountsCacheSize)
	}
}

func TestMetricsCountsSuspiciousRequests(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/entries/day?date=2024-03-12&file=.env", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("day status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, http.MethodGet, "/metrics", "")
	var metrics struct {
		SuspiciousRequests int64 `json:"suspicious_requests"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.SuspiciousRequests != 1 {
		t.Fatalf("suspicious_requests = %d, want 1", metrics.SuspiciousRequests)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := setupTestServer(t, identity.NewStaticProvider(""))

	rec := doRequest(srv, http.MethodGet, "/api/entries/day?date=2024-03-12", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Fatalf("Content-Security-Policy = %q, want a deny-all policy", got)
	}
}
