package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/handlers"
	"github.com/charlesng35/crewbell/internal/middleware"
)

func registerServiceRequestRoutes(api *gin.RouterGroup, handler *handlers.ServiceRequestHandler, limiter *middleware.RateLimiter) {
	group := api.Group("/service-requests")
	{
		create := []gin.HandlerFunc{handler.Create}
		if limiter != nil {
			create = append([]gin.HandlerFunc{middleware.RateLimit(limiter)}, create...)
		}
		group.POST("", create...)

		group.GET("", handler.List)
		group.GET("/:id", handler.Get)
		group.POST("/:id/accept", handler.Accept)
		group.POST("/:id/complete", handler.Complete)
	}
}
