package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/handlers"
	"github.com/charlesng35/crewbell/internal/middleware"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/badge", handler.Badge)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)

		group.POST("", middleware.RequireAdmin(), handler.Create)
	}
}

func registerSettingsRoutes(api *gin.RouterGroup, handler *handlers.SettingsHandler) {
	group := api.Group("/settings/notifications")
	{
		group.GET("", handler.Get)
		group.PATCH("", handler.Update)
		group.POST("/reset", middleware.RequireAdmin(), handler.Reset)
	}
}
