package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerAssignmentRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.AssignmentHandler) {
	assignments := api.Group("/assignments")
	{
		assignments.POST("", require("users.manage"), handler.Grant)
		assignments.DELETE("/:id", require("users.manage"), handler.Revoke)
	}

	api.GET("/users/:id/assignments", require("users.manage"), handler.ListForUser)
}
