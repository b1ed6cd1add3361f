package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// AssignmentHandler manages role grants and revocations.
type AssignmentHandler struct {
	assignments *services.AssignmentService
}

func NewAssignmentHandler(assignments *services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

type grantRoleRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	RoleID   string `json:"role_id" validate:"required"`
	Reason   string `json:"reason"`
	Duration *struct {
		Amount int    `json:"amount" validate:"min=1"`
		Unit   string `json:"unit" validate:"oneof=minutes hours days"`
	} `json:"duration"`
}

// POST /api/assignments
func (h *AssignmentHandler) Grant(c *gin.Context) {
	var req grantRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.GrantRoleInput{
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		GrantedBy: currentUserID(c),
		Reason:    req.Reason,
	}
	if req.Duration != nil {
		input.Duration = &services.GrantDuration{
			Amount: req.Duration.Amount,
			Unit:   req.Duration.Unit,
		}
	}

	assignment, err := h.assignments.GrantRole(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, assignment)
}

// DELETE /api/assignments/:id
func (h *AssignmentHandler) Revoke(c *gin.Context) {
	if err := h.assignments.RevokeAssignment(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/users/:id/assignments
func (h *AssignmentHandler) ListForUser(c *gin.Context) {
	rows, err := h.assignments.ListUserAssignments(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}
