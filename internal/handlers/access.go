package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/pkg/errors"
	"github.com/oakdesk/oakdesk/pkg/metrics"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// AccessHandler exposes the permission evaluator over HTTP.
type AccessHandler struct {
	evaluator *access.Evaluator
}

func NewAccessHandler(evaluator *access.Evaluator) *AccessHandler {
	return &AccessHandler{evaluator: evaluator}
}

type evaluateRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Permission   string `json:"permission"`
	Resource     string `json:"resource"`
	Action       string `json:"action"`
	DepartmentID string `json:"department_id"`
}

// POST /api/access/evaluate
//
// The decision is returned as data: a denial is a 200 with allowed=false,
// never an error status.
func (h *AccessHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Permission == "" && (req.Resource == "" || req.Action == "") {
		response.Error(c, errors.NewBadRequest("permission or resource/action is required"))
		return
	}

	decision, err := h.evaluator.Evaluate(requestContext(c), req.UserID, access.Query{
		Permission:   req.Permission,
		Resource:     req.Resource,
		Action:       req.Action,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.AccessDecisions.WithLabelValues(decision.Permission, string(decision.Reason)).Inc()
	response.Success(c, http.StatusOK, decision)
}

// GET /api/access/users/:id/permissions
func (h *AccessHandler) UserPermissions(c *gin.Context) {
	userID := c.Param("id")

	perms, err := h.evaluator.UserPermissions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"permissions": perms})
}
