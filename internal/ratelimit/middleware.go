package ratelimit

import (
	"context"
	"net/http"
	"time"

	"auctions/internal/biddingerrors"
	"auctions/utils"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Limiter is the quota check used by Middleware.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware rejects requests from a client IP that exceeded its quota with
// 429. When the limiter itself fails the request is refused with 503.
func Middleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		allowed, err := limiter.Allow(ctx, c.ClientIP())
		if err != nil {
			utils.Error("RateLimit: limiter unavailable", map[string]any{
				"client_ip": c.ClientIP(),
				"error":     err.Error(),
			})
			utils.JSONAbort(c, http.StatusServiceUnavailable, err, "rate limiter unavailable")
			return
		}
		if !allowed {
			utils.Warn("RateLimit: request rejected", map[string]any{
				"client_ip": c.ClientIP(),
				"path":      c.Request.URL.Path,
			})
			utils.JSONAbort(c, http.StatusTooManyRequests, biddingerrors.ErrRateLimited, "too many requests")
			return
		}
		c.Next()
	}
}
