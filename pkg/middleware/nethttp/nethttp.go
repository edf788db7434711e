// Package nethttp adapts the limiter to the standard net/http stack.
package nethttp

import (
	"net/http"

	"github.com/gatewaylabs/ratelimit/pkg/middleware"
	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

// Middleware creates a rate-limiting middleware for net/http handlers.
//
// It checks every request against its x-ratelimit-policy header, attaches
// the RateLimit-* response headers and rejects over-limit requests with
// 429 before they reach the wrapped handler.
//
// Example:
//
//	limiter := ratelimit.New(bucket.New(store), ratelimit.Config{})
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//	http.ListenAndServe(":8080", nethttp.Middleware(limiter)(mux))
func Middleware(limiter *ratelimit.Limiter, options ...middleware.Option) func(http.Handler) http.Handler {
	cfg := middleware.NewConfig(options...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Check(r.Context(), middleware.BuildCheckRequest(cfg, r))

			for name, value := range result.Headers {
				w.Header().Set(name, value)
			}

			if !result.Allowed {
				logging.Debugf("Request denied for %s %s: remaining=%v", r.Method, r.URL.Path, result.Remaining)
				cfg.OnDenied(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
