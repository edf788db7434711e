// Package middleware holds the shared plumbing for the HTTP enforcement
// adapters: translating an incoming request's headers into a limiter
// check, and functional options to customize that translation.
//
// The adapters themselves live in the nethttp and gin subpackages.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gatewaylabs/ratelimit/pkg/headers"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

// Config controls how the adapters map requests onto limiter checks.
type Config struct {
	// OrgFunc resolves the organization owning the request. The default
	// reads the x-gateway-org-id header injected by the auth layer.
	OrgFunc func(r *http.Request) string

	// FailureMode overrides the limiter's default when non-empty.
	FailureMode ratelimit.FailureMode

	// OnDenied renders the 429 response. The RateLimit-* headers are
	// already set when it runs.
	OnDenied func(w http.ResponseWriter, r *http.Request)
}

// Option customizes a Config.
type Option func(*Config)

// NewConfig builds a Config with defaults applied.
func NewConfig(options ...Option) *Config {
	cfg := &Config{
		OrgFunc: func(r *http.Request) string {
			return r.Header.Get(headers.GatewayOrgID)
		},
		OnDenied: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		},
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// WithOrgFunc overrides how the organization is resolved.
func WithOrgFunc(f func(r *http.Request) string) Option {
	return func(cfg *Config) { cfg.OrgFunc = f }
}

// WithFailureMode forces a failure mode for checks from this adapter.
func WithFailureMode(mode ratelimit.FailureMode) Option {
	return func(cfg *Config) { cfg.FailureMode = mode }
}

// WithDeniedHandler overrides the 429 response body.
func WithDeniedHandler(f func(w http.ResponseWriter, r *http.Request)) Option {
	return func(cfg *Config) { cfg.OnDenied = f }
}

// BuildCheckRequest maps a request's headers onto a limiter check.
func BuildCheckRequest(cfg *Config, r *http.Request) ratelimit.CheckRequest {
	out := ratelimit.CheckRequest{
		PolicyHeader:   r.Header.Get(headers.RateLimitPolicy),
		OrganizationID: cfg.OrgFunc(r),
		UserID:         r.Header.Get(headers.GatewayUserID),
		FailureMode:    cfg.FailureMode,
	}

	if raw := r.Header.Get(headers.RateLimitCostCents); raw != "" {
		if cost, err := strconv.ParseFloat(raw, 64); err == nil && cost >= 0 {
			out.CostCents = &cost
		}
	}

	for name := range r.Header {
		lower := strings.ToLower(name)
		if prop, ok := strings.CutPrefix(lower, headers.GatewayPropertyPrefix); ok && prop != "" {
			if out.Properties == nil {
				out.Properties = map[string]string{}
			}
			out.Properties[prop] = r.Header.Get(name)
		}
	}

	return out
}
