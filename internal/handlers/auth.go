package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/access"
	iauth "github.com/oakdesk/oakdesk/internal/auth"
	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/errors"
	"github.com/oakdesk/oakdesk/pkg/metrics"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// AuthHandler manages authentication flows (login/me).
type AuthHandler struct {
	users     *services.UserService
	jwt       *iauth.JWTService
	evaluator *access.Evaluator
}

func NewAuthHandler(users *services.UserService, jwt *iauth.JWTService, evaluator *access.Evaluator) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, evaluator: evaluator}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		response.Error(c, errors.NewBadRequest("username is required"))
		return
	}

	user, err := h.users.VerifyCredentials(requestContext(c), req.Username, req.Password)
	if err != nil {
		// Normalise auth errors to 401
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:   user.ID,
		Username: user.Username,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	perms, _ := h.evaluator.UserPermissions(requestContext(c), user.ID)

	payload := gin.H{
		"tokens": tokenResponse{AccessToken: token},
		"user": gin.H{
			"id":        user.ID,
			"username":  user.Username,
			"email":     user.Email,
			"is_root":   user.IsRoot,
			"is_active": user.IsActive,
		},
		"permissions": perms,
	}

	response.Success(c, http.StatusOK, payload)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	perms, err := h.evaluator.UserPermissions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":        user,
		"permissions": perms,
	})
}
