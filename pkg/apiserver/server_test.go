package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatewaylabs/ratelimit/pkg/bucket"
	"github.com/gatewaylabs/ratelimit/pkg/headers"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

func newTestServer() (*RateLimitAPIServer, http.Handler) {
	buckets := bucket.New(bucket.NewMemoryStore())
	limiter := ratelimit.New(buckets, ratelimit.Config{})
	srv := NewServer(limiter, buckets)
	return srv, srv.setupRoutes()
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer()
	w := doJSON(t, handler, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestCheckEndpoint(t *testing.T) {
	_, handler := newTestServer()
	body := CheckRequest{Policy: "1;w=60", OrganizationID: "org-1"}

	w := doJSON(t, handler, http.MethodPost, "/api/v1/check", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Allowed || resp.StatusCode != http.StatusOK {
		t.Errorf("first check: Allowed=%v StatusCode=%d", resp.Allowed, resp.StatusCode)
	}
	if got := resp.Headers[headers.RateLimitRemaining]; got != "0" {
		t.Errorf("Remaining = %q, want %q", got, "0")
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/check", body)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Allowed || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second check: Allowed=%v StatusCode=%d", resp.Allowed, resp.StatusCode)
	}
}

func TestCheckEndpointValidation(t *testing.T) {
	_, handler := newTestServer()

	w := doJSON(t, handler, http.MethodPost, "/api/v1/check", CheckRequest{Policy: "1;w=60"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing organization_id: status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/check", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRecordUsageEndpoint(t *testing.T) {
	_, handler := newTestServer()

	check := CheckRequest{Policy: "100;w=3600;u=cents", OrganizationID: "org-1"}
	w := doJSON(t, handler, http.MethodPost, "/api/v1/check", check)
	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d", w.Code)
	}

	record := RecordUsageRequest{Policy: "100;w=3600;u=cents", OrganizationID: "org-1", CostCents: 150}
	w = doJSON(t, handler, http.MethodPost, "/api/v1/record-usage", record)
	if w.Code != http.StatusAccepted {
		t.Fatalf("record-usage status = %d, want %d", w.Code, http.StatusAccepted)
	}

	// The overspend must be visible on the next check.
	w = doJSON(t, handler, http.MethodPost, "/api/v1/check", check)
	var resp CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Allowed {
		t.Error("check after overspend should be denied")
	}
}

func TestBucketInspectionAndReset(t *testing.T) {
	_, handler := newTestServer()

	// Populate a bucket, then look it up by its key.
	doJSON(t, handler, http.MethodPost, "/api/v1/check", CheckRequest{Policy: "5;w=60", OrganizationID: "org-1"})

	const key = "rl:org-1:global:request"
	w := doJSON(t, handler, http.MethodGet, "/api/v1/buckets?key="+key, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get bucket status = %d, body %s", w.Code, w.Body.String())
	}
	var state BucketResponse
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode bucket: %v", err)
	}
	if state.Key != key {
		t.Errorf("Key = %q, want %q", state.Key, key)
	}
	if state.Tokens != 4 {
		t.Errorf("Tokens = %v, want 4", state.Tokens)
	}
	if state.Capacity != 5 {
		t.Errorf("Capacity = %v, want 5", state.Capacity)
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/v1/buckets?key="+key, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete bucket status = %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/buckets?key="+key, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after reset status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBucketEndpointsRequireKey(t *testing.T) {
	_, handler := newTestServer()

	if w := doJSON(t, handler, http.MethodGet, "/api/v1/buckets", nil); w.Code != http.StatusBadRequest {
		t.Errorf("get without key: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if w := doJSON(t, handler, http.MethodDelete, "/api/v1/buckets", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete without key: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
