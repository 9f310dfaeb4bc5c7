package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/app"
	"github.com/eternalmemory/eternal/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, handler *handlers.HealthHandler) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	for _, router := range []gin.IRouter{r, r.Group("/api")} {
		router.GET("/health", handler.Health)
		router.GET("/health/live", handler.Live)
		router.GET("/health/ready", handler.Ready)
	}
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
