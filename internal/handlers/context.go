package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user's ID from the gin context.
func currentUserID(c *gin.Context) string {
	if v, ok := c.Get(middleware.CtxUserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
