package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerEmergencyRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.EmergencyHandler) {
	emergency := api.Group("/emergency")
	{
		emergency.GET("", require("emergency.grant"), handler.ListInEffect)
		emergency.POST("", require("emergency.grant"), handler.Grant)
		// Token consumption is authenticated but not permission gated: the
		// token itself is the credential.
		emergency.POST("/consume", handler.ConsumeToken)
		emergency.DELETE("/:id", require("emergency.grant"), handler.Revoke)
	}
}
