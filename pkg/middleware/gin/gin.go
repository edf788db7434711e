// Package gin adapts the limiter to the Gin web framework.
package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/gatewaylabs/ratelimit/pkg/middleware"
	"github.com/gatewaylabs/ratelimit/pkg/observability/logging"
	"github.com/gatewaylabs/ratelimit/pkg/ratelimit"
)

// RateLimiter creates a Gin middleware that enforces the request's
// x-ratelimit-policy header.
//
// Example:
//
//	limiter := ratelimit.New(bucket.New(store), ratelimit.Config{})
//	router := gin.Default()
//	router.Use(ginmw.RateLimiter(limiter))
func RateLimiter(limiter *ratelimit.Limiter, options ...middleware.Option) gin.HandlerFunc {
	cfg := middleware.NewConfig(options...)

	return func(c *gin.Context) {
		result := limiter.Check(c.Request.Context(), middleware.BuildCheckRequest(cfg, c.Request))

		for name, value := range result.Headers {
			c.Header(name, value)
		}

		if !result.Allowed {
			logging.Debugf("Request denied for %s %s: remaining=%v", c.Request.Method, c.Request.URL.Path, result.Remaining)
			cfg.OnDenied(c.Writer, c.Request)
			c.Abort()
			return
		}

		c.Next()
	}
}
