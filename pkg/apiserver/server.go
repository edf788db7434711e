// Package apiserver exposes the admin HTTP API: direct check and
// record-usage endpoints for gateways that integrate over HTTP, plus
// bucket inspection and reset for operators.
package apiserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gatewaylabs/ratelimit/pkg/bucket"
	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

// RateLimitAPIServer serves the admin API on top of a Limiter and its
// bucket registry.
type RateLimitAPIServer struct {
	limiter *ratelimit.Limiter
	buckets *bucket.Buckets
}

// NewServer creates the admin API server.
func NewServer(limiter *ratelimit.Limiter, buckets *bucket.Buckets) *RateLimitAPIServer {
	return &RateLimitAPIServer{limiter: limiter, buckets: buckets}
}

// Init starts the admin API server and blocks until it exits.
func Init(port int, limiter *ratelimit.Limiter, buckets *bucket.Buckets) error {
	apiServer := NewServer(limiter, buckets)

	mux := apiServer.setupRoutes()
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.Infof("Rate limit API server listening on port %d", port)
	return server.ListenAndServe()
}

// setupRoutes configures all API routes
func (s *RateLimitAPIServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/check", s.handleCheck)
	mux.HandleFunc("POST /api/v1/record-usage", s.handleRecordUsage)

	mux.HandleFunc("GET /api/v1/buckets", s.handleGetBucket)
	mux.HandleFunc("DELETE /api/v1/buckets", s.handleResetBucket)

	return mux
}

// handleHealth handles health check requests
func (s *RateLimitAPIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "healthy", "service": "ratelimit-api"}`))
}

// CheckRequest is the JSON body of POST /api/v1/check.
type CheckRequest struct {
	Policy         string            `json:"policy"`
	OrganizationID string            `json:"organization_id"`
	UserID         string            `json:"user_id,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	CostCents      *float64          `json:"cost_cents,omitempty"`
	FailureMode    string            `json:"failure_mode,omitempty"`
}

// CheckResponse is the JSON body returned by POST /api/v1/check.
type CheckResponse struct {
	Allowed    bool              `json:"allowed"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Error      string            `json:"error,omitempty"`
}

func (s *RateLimitAPIServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.OrganizationID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "organization_id is required")
		return
	}

	result := s.limiter.Check(r.Context(), ratelimit.CheckRequest{
		PolicyHeader:   req.Policy,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Properties:     req.Properties,
		CostCents:      req.CostCents,
		FailureMode:    ratelimit.FailureMode(req.FailureMode),
	})

	resp := CheckResponse{
		Allowed:    result.Allowed,
		StatusCode: result.StatusCode,
		Headers:    result.Headers,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	s.writeJSONResponse(w, http.StatusOK, resp)
}

// RecordUsageRequest is the JSON body of POST /api/v1/record-usage.
type RecordUsageRequest struct {
	Policy         string            `json:"policy"`
	OrganizationID string            `json:"organization_id"`
	UserID         string            `json:"user_id,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
	CostCents      float64           `json:"cost_cents"`
}

func (s *RateLimitAPIServer) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.OrganizationID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "organization_id is required")
		return
	}

	// Recording is best-effort: the response is accepted regardless of
	// whether the deduction landed.
	s.limiter.RecordUsage(r.Context(), ratelimit.CheckRequest{
		PolicyHeader:   req.Policy,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Properties:     req.Properties,
	}, req.CostCents)

	w.WriteHeader(http.StatusAccepted)
}

// BucketResponse is the JSON shape of a bucket state returned by
// GET /api/v1/buckets.
type BucketResponse struct {
	Key string `json:"key"`
	bucket.State
}

func (s *RateLimitAPIServer) handleGetBucket(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "key query parameter is required")
		return
	}

	state, err := s.buckets.GetState(r.Context(), key)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if state == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("no bucket for key %q", key))
		return
	}

	s.writeJSONResponse(w, http.StatusOK, BucketResponse{Key: key, State: *state})
}

func (s *RateLimitAPIServer) handleResetBucket(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "key query parameter is required")
		return
	}

	if err := s.buckets.Reset(r.Context(), key); err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	logging.Infof("Bucket %s reset via admin API", key)
	w.WriteHeader(http.StatusNoContent)
}

// Helper methods for JSON handling
func (s *RateLimitAPIServer) parseJSONRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

func (s *RateLimitAPIServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *RateLimitAPIServer) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      errorCode,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	s.writeJSONResponse(w, statusCode, errorResponse)
}
