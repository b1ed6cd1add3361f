package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/internal/models"
	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/errors"
	"github.com/oakdesk/oakdesk/pkg/metrics"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// RequirePermission checks that the authenticated user holds the named
// permission. Denials are audited as unauthorized access attempts.
func RequirePermission(evaluator *access.Evaluator, audit *services.AuditService, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserIDKey)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		userID, _ := v.(string)

		decision, err := evaluator.Evaluate(c.Request.Context(), userID, access.Query{Permission: permission})
		if err != nil {
			// Internal error while evaluating
			metrics.AccessDecisions.WithLabelValues(permission, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": errors.ErrInternalServer.Code, "message": "permission check failed"}})
			return
		}

		metrics.AccessDecisions.WithLabelValues(permission, string(decision.Reason)).Inc()

		if !decision.Allowed {
			// Best effort: a failed audit write must not mask the denial.
			_ = audit.Record(c.Request.Context(), services.AuditRecord{
				UserID:      userID,
				Action:      models.AuditActionUnauthorized,
				PerformedBy: userID,
				NewValues: map[string]any{
					"permission": permission,
					"reason":     string(decision.Reason),
				},
			})
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}
