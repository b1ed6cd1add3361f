package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerAccessRoutes(api *gin.RouterGroup, handler *handlers.AccessHandler) {
	access := api.Group("/access")
	{
		access.POST("/evaluate", handler.Evaluate)
		access.GET("/users/:id/permissions", handler.UserPermissions)
	}
}
