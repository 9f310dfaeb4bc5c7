package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
	CtxRoleKey      = "userRole"
)

// SessionChecker reports whether the session behind an access token is still usable.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// Auth enforces JWT authentication. When sessions is non-nil, tokens whose session was
// revoked by logout are rejected before they expire.
func Auth(jwt *iauth.JWTService, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		if !authenticate(c, jwt, sessions, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth identifies the caller when a bearer token is present and lets anonymous
// requests through. A token that is present but invalid is still rejected so clients
// know to refresh.
func OptionalAuth(jwt *iauth.JWTService, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		if !authenticate(c, jwt, sessions, token) {
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}

func authenticate(c *gin.Context, jwt *iauth.JWTService, sessions SessionChecker, token string) bool {
	claims, err := jwt.ValidateAccessToken(token)
	if err != nil {
		// Normalise all validation failures to 401
		c.Header("WWW-Authenticate", "Bearer")
		response.Abort(c, errors.ErrUnauthorized)
		return false
	}

	if sessions != nil && claims.SessionID != "" {
		active, err := sessions.IsActive(c.Request.Context(), claims.SessionID)
		if err != nil {
			logger.WithModule("auth").Error("session check failed", zap.String("session_id", claims.SessionID), zap.Error(err))
			response.Abort(c, errors.ErrInternalServer)
			return false
		}
		if !active {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrUnauthorized)
			return false
		}
	}

	// Propagate identity into request context
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, claims.UserID)
	c.Set(CtxRoleKey, claims.Role)
	if claims.SessionID != "" {
		c.Set(CtxSessionIDKey, claims.SessionID)
	}
	return true
}

// RoleFromContext returns the authenticated role, or "" for anonymous requests.
func RoleFromContext(c *gin.Context) models.Role {
	if v, ok := c.Get(CtxRoleKey); ok {
		if role, ok := v.(models.Role); ok {
			return role
		}
	}
	return ""
}
