package api

import (
	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, require func(string) gin.HandlerFunc, handler *handlers.AuditHandler) {
	api.GET("/audit", require("audit.view"), handler.List)
	api.GET("/audit/export", require("audit.view"), handler.Export)
}
