package api

import (
	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/handlers"
)

type memorialRouteDeps struct {
	Memorials *handlers.MemorialHandler
	Messages  *handlers.MessageHandler
	Tributes  *handlers.TributeHandler
	Images    *handlers.ImageHandler
	AI        *handlers.AIHandler
}

func registerMemorialRoutes(public, api *gin.RouterGroup, limits rateLimits, deps memorialRouteDeps) {
	public.GET("/tags", deps.Memorials.ListTags)

	open := public.Group("/memorials")
	{
		open.GET("", deps.Memorials.ListPublic)
		open.GET("/slug/:slug", deps.Memorials.BySlug)
		open.GET("/:id/messages", deps.Messages.List)
		open.POST("/:id/messages", deps.Messages.Post)
		open.POST("/:id/candles", deps.Tributes.LightCandle)
		open.POST("/:id/share", deps.Memorials.Share)
		open.GET("/:id/qrcode", deps.Memorials.QRCode)
	}

	owned := api.Group("/memorials")
	{
		owned.POST("", deps.Memorials.Create)
		owned.GET("/mine", deps.Memorials.ListMine)
		owned.GET("/:id", deps.Memorials.Get)
		owned.PATCH("/:id", deps.Memorials.Update)
		owned.DELETE("/:id", deps.Memorials.Delete)
		owned.POST("/:id/publish", deps.Memorials.Publish)
		owned.POST("/:id/archive", deps.Memorials.Archive)
		owned.PUT("/:id/tags", deps.Memorials.SetTags)

		owned.POST("/:id/like", deps.Tributes.ToggleLike)

		owned.POST("/:id/images", deps.Images.Upload)
		owned.DELETE("/:id/images/:imageID", deps.Images.Delete)
		owned.POST("/:id/images/:imageID/main", deps.Images.SetMain)

		owned.POST("/:id/obituary", limits.ai, deps.AI.DraftObituary)
		owned.POST("/:id/digital-life", limits.ai, deps.AI.Chat)
		owned.GET("/:id/digital-life", deps.AI.History)
	}
}
