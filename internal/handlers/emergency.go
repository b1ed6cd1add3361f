package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/metrics"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// EmergencyHandler manages break-glass access grants.
type EmergencyHandler struct {
	emergency *services.EmergencyService
}

func NewEmergencyHandler(emergency *services.EmergencyService) *EmergencyHandler {
	return &EmergencyHandler{emergency: emergency}
}

type emergencyGrantRequest struct {
	UserID      string    `json:"user_id" validate:"required"`
	Permissions []string  `json:"permissions" validate:"required,min=1"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
	Reason      string    `json:"reason" validate:"required"`
	SingleUse   bool      `json:"single_use"`
}

// POST /api/emergency
func (h *EmergencyHandler) Grant(c *gin.Context) {
	var req emergencyGrantRequest
	if !bindAndValidate(c, &req) {
		return
	}

	grant, err := h.emergency.Grant(requestContext(c), services.GrantInput{
		UserID:      req.UserID,
		Permissions: req.Permissions,
		GrantedBy:   currentUserID(c),
		ExpiresAt:   req.ExpiresAt,
		Reason:      req.Reason,
		SingleUse:   req.SingleUse,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.EmergencyGrants.WithLabelValues("granted").Inc()
	response.Success(c, http.StatusCreated, grant)
}

type consumeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/emergency/consume
func (h *EmergencyHandler) ConsumeToken(c *gin.Context) {
	var req consumeTokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	grant, err := h.emergency.MarkTokenUsed(requestContext(c), req.Token, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	metrics.EmergencyGrants.WithLabelValues("token_consumed").Inc()
	response.Success(c, http.StatusOK, grant)
}

// DELETE /api/emergency/:id
func (h *EmergencyHandler) Revoke(c *gin.Context) {
	if err := h.emergency.Revoke(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	metrics.EmergencyGrants.WithLabelValues("revoked").Inc()
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/emergency
func (h *EmergencyHandler) ListInEffect(c *gin.Context) {
	grants, err := h.emergency.ListInEffect(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, grants)
}
