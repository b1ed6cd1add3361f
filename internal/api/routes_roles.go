package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerRoleRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.RoleHandler) {
	roles := api.Group("/roles")
	{
		roles.GET("", handler.List)
		roles.POST("", require("roles.manage"), handler.Create)
		roles.PATCH("/:id", require("roles.manage"), handler.Update)
		roles.DELETE("/:id", require("roles.manage"), handler.Deactivate)
		roles.PUT("/:id/permissions", require("roles.manage"), handler.SetPermissions)
	}

	permissions := api.Group("/permissions")
	{
		permissions.GET("", handler.ListPermissions)
		permissions.POST("", require("roles.manage"), handler.CreatePermission)
		permissions.DELETE("/:id", require("roles.manage"), handler.DeactivatePermission)
	}
}
