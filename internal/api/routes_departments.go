package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerDepartmentRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.DepartmentHandler) {
	departments := api.Group("/departments")
	{
		departments.GET("", handler.List)
		departments.POST("", require("departments.manage"), handler.Create)
		departments.GET("/:id", handler.Get)
		departments.PATCH("/:id", require("departments.manage"), handler.Update)
		departments.DELETE("/:id", require("departments.manage"), handler.Deactivate)
		departments.POST("/:id/reparent", require("departments.manage"), handler.Reparent)
		departments.GET("/:id/ancestors", handler.Ancestors)
		departments.GET("/:id/descendants", handler.Descendants)
	}
}
