package api

import (
	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/handlers"
)

func registerAuthRoutes(public, api *gin.RouterGroup, limits rateLimits, handler *handlers.AuthHandler) {
	auth := public.Group("/auth")
	auth.Use(limits.auth)
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)
		auth.GET("/google", handler.GoogleBegin)
		auth.GET("/google/callback", handler.GoogleCallback)
	}

	api.GET("/auth/me", handler.Me)
	api.POST("/auth/logout", handler.Logout)
}
