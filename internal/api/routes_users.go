package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerUserRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.UserHandler) {
	users := api.Group("/users")
	{
		users.GET("", require("users.manage"), handler.List)
		users.POST("", require("users.manage"), handler.Create)
		users.GET("/:id", require("users.manage"), handler.Get)
		users.DELETE("/:id", require("users.manage"), handler.Deactivate)
		users.PUT("/:id/department", require("users.manage"), handler.SetDepartment)
		users.PUT("/:id/permissions", require("roles.manage"), handler.SetDirectPermissions)
	}
}
