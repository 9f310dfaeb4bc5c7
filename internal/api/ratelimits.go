package api

import (
	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/app"
	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/middleware"
)

type rateLimits struct {
	global gin.HandlerFunc
	auth   gin.HandlerFunc
	ai     gin.HandlerFunc
}

func newRateLimits(cfg app.RateLimitConfig, store cache.Store) rateLimits {
	if !cfg.Enabled || store == nil {
		return rateLimits{global: passThrough, auth: passThrough, ai: passThrough}
	}
	return rateLimits{
		global: middleware.RateLimit(store, "global", cfg.Requests, cfg.Window),
		auth:   middleware.RateLimit(store, "auth", cfg.AuthRequests, cfg.AuthWindow),
		ai:     middleware.RateLimit(store, "ai", cfg.AIRequests, cfg.AIWindow),
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}
