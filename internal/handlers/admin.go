package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/response"
)

// AdminHandler serves the moderation console: statistics, memorial status overrides and
// user roles.
type AdminHandler struct {
	stats     *services.StatsService
	memorials *services.MemorialService
	users     *services.UserService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(stats *services.StatsService, memorials *services.MemorialService, users *services.UserService) *AdminHandler {
	return &AdminHandler{stats: stats, memorials: memorials, users: users}
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT PUBLISHED ARCHIVED DELETED"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// GET /api/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Overview(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SetCacheControl(c, response.CachePrivate)
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

// GET /api/admin/memorials
func (h *AdminHandler) ListMemorials(c *gin.Context) {
	status := models.MemorialStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if status != "" && !status.Valid() {
		response.Error(c, appErrors.NewBadRequest("无效的状态"))
		return
	}

	page, perPage := pagination(c)
	result, err := h.memorials.AdminList(requestContext(c), status, c.Query("q"), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"memorials": result.Items}, response.NewMeta(result.Page, result.Size, result.Total))
}

// POST /api/admin/memorials/:id/status
func (h *AdminHandler) SetMemorialStatus(c *gin.Context) {
	var req setStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	memorial, err := h.memorials.SetStatus(requestContext(c), actorFromContext(c), c.Param("id"), models.MemorialStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	opts := services.ListUsersOptions{Query: c.Query("q")}
	if raw := c.Query("role"); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			response.Error(c, appErrors.NewBadRequest("无效的角色"))
			return
		}
		opts.Role = role
	}
	opts.Page, opts.PageSize = pagination(c)

	users, total, err := h.users.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"users": users}, response.NewMeta(opts.Page, opts.PageSize, total))
}

// PATCH /api/admin/users/:id/role
func (h *AdminHandler) ChangeRole(c *gin.Context) {
	var req changeRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		response.Error(c, appErrors.NewBadRequest("无效的角色"))
		return
	}

	user, err := h.users.ChangeRole(requestContext(c), actorFromContext(c), c.Param("id"), role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}
