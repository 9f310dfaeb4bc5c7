package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/response"
)

// RateLimit limits requests per (scope, client IP) within a fixed window. Counters live in
// store, so a database backed store shares limits across server processes. Requests are
// let through when the store fails.
func RateLimit(store cache.Store, scope string, maxRequests int, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := cache.Key(cache.KindRateLimit, scope+"|"+c.ClientIP())
		count, resetIn, err := store.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		reset := strconv.Itoa(int(resetIn.Round(time.Second).Seconds()))
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", reset)

		if count > int64(maxRequests) {
			c.Header("Retry-After", reset)
			response.Abort(c, errors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
