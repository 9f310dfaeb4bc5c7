package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/middleware"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
	"github.com/eternalmemory/eternal/pkg/response"
)

var (
	errGoogleDisabled = appErrors.ErrServiceUnavailable.WithMessage("Google 登录未启用")
	errOAuthState     = appErrors.ErrUnauthorized.WithMessage("登录状态已失效，请重新登录")
)

// GoogleAuthenticator is the part of the Google provider the handler drives.
type GoogleAuthenticator interface {
	AuthURL(state, nonce, challenge string) string
	Exchange(ctx context.Context, code, verifier, nonce string) (*iauth.GoogleIdentity, error)
}

// AuthHandler manages authentication flows (register/login/refresh/logout/me/google).
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
	google   GoogleAuthenticator
	states   *iauth.OAuthStateStore
	log      *zap.Logger
}

// NewAuthHandler constructs the handler. google and states may be nil when Google sign-in
// is not configured.
func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService, google GoogleAuthenticator, states *iauth.OAuthStateStore) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		google:   google,
		states:   states,
		log:      logger.WithModule("auth"),
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=191"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.issue(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.issue(c, http.StatusOK, user)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		// Normalise all refresh failures to 401
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		h.log.Error("revoke session", zap.String("session_id", sid), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CachePrivate)
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// GET /api/auth/google
func (h *AuthHandler) GoogleBegin(c *gin.Context) {
	if h.google == nil || h.states == nil {
		response.Error(c, errGoogleDisabled)
		return
	}

	pending, err := h.states.Begin(requestContext(c))
	if err != nil {
		h.log.Error("begin google login", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SetCacheControl(c, response.CacheNone)
	response.Success(c, http.StatusOK, gin.H{
		"url":   h.google.AuthURL(pending.State, pending.Nonce, pending.Challenge),
		"state": pending.State,
	})
}

// GET /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.google == nil || h.states == nil {
		response.Error(c, errGoogleDisabled)
		return
	}

	if reason := c.Query("error"); reason != "" {
		metrics.AuthAttempts.WithLabelValues("google", "denied").Inc()
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("Google 授权已取消"))
		return
	}

	ctx := requestContext(c)
	record, err := h.states.Consume(ctx, c.Query("state"))
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("google", "failure").Inc()
		response.Error(c, errOAuthState.WithInternal(err))
		return
	}

	identity, err := h.google.Exchange(ctx, c.Query("code"), record.Verifier, record.Nonce)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("google", "failure").Inc()
		h.log.Warn("google exchange failed", zap.Error(err))
		response.Error(c, appErrors.ErrUnauthorized.WithInternal(err))
		return
	}

	user, err := h.users.UpsertGoogleUser(ctx, identity)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.issue(c, http.StatusOK, user)
}

func (h *AuthHandler) issue(c *gin.Context, status int, user *models.User) {
	pair, _, err := h.sessions.CreateSession(requestContext(c), user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error("create session", zap.String("user_id", user.ID), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.SetCacheControl(c, response.CachePrivate)
	response.Success(c, status, gin.H{"tokens": pair, "user": user})
}
