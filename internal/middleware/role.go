package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/metrics"
	"github.com/eternalmemory/eternal/pkg/response"
)

// RequireRole admits authenticated users whose role ranks at least min. It must run
// after Auth.
func RequireRole(min models.Role) gin.HandlerFunc {
	required := string(min)
	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		if !RoleFromContext(c).AtLeast(min) {
			metrics.RoleChecks.WithLabelValues(required, "denied").Inc()
			response.Abort(c, errors.ErrForbidden)
			return
		}
		metrics.RoleChecks.WithLabelValues(required, "allowed").Inc()
		c.Next()
	}
}
