package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/handlers"
	"github.com/charlesng35/crewbell/internal/middleware"
)

func registerDutyRoutes(api *gin.RouterGroup, handler *handlers.DutyHandler) {
	group := api.Group("/duty/assignments")
	{
		group.GET("", handler.List)
		group.PUT("", middleware.RequireAdmin(), handler.Assign)
		group.DELETE("", middleware.RequireAdmin(), handler.Unassign)
	}
}
