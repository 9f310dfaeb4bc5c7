package api

import (
	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/handlers"
	"github.com/eternalmemory/eternal/internal/middleware"
	"github.com/eternalmemory/eternal/internal/models"
)

type adminRouteDeps struct {
	Admin    *handlers.AdminHandler
	Messages *handlers.MessageHandler
	Audit    *handlers.AuditHandler
}

func registerAdminRoutes(api *gin.RouterGroup, deps adminRouteDeps) {
	admin := api.Group("/admin")

	moderators := admin.Group("")
	moderators.Use(middleware.RequireRole(models.RoleModerator))
	{
		moderators.GET("/stats", deps.Admin.Stats)
		moderators.GET("/messages", deps.Messages.Queue)
		moderators.POST("/messages/:id/approve", deps.Messages.Approve)
		moderators.POST("/messages/:id/reject", deps.Messages.Reject)
	}

	admins := admin.Group("")
	admins.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admins.GET("/memorials", deps.Admin.ListMemorials)
		admins.POST("/memorials/:id/status", deps.Admin.SetMemorialStatus)
		admins.GET("/users", deps.Admin.ListUsers)
		admins.PATCH("/users/:id/role", deps.Admin.ChangeRole)
		admins.GET("/audit", deps.Audit.List)
	}
}
