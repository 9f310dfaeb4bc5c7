package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/middleware"
	"github.com/eternalmemory/eternal/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// actorFromContext returns the caller identified by the auth middleware. Requests that
// passed no token yield the anonymous actor.
func actorFromContext(c *gin.Context) services.Actor {
	return services.Actor{
		ID:   c.GetString(middleware.CtxUserIDKey),
		Role: middleware.RoleFromContext(c),
	}
}
