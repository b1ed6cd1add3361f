package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// UserHandler manages user accounts and their direct grants.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Username     string  `json:"username" validate:"required,min=3"`
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=8"`
	DepartmentID *string `json:"department_id"`
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.CreateUser(requestContext(c), services.CreateUserInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		DepartmentID: req.DepartmentID,
		PerformedBy:  currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type setDepartmentRequest struct {
	DepartmentID *string `json:"department_id"`
}

// PUT /api/users/:id/department
func (h *UserHandler) SetDepartment(c *gin.Context) {
	var req setDepartmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.SetDepartment(requestContext(c), c.Param("id"), req.DepartmentID, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

// PUT /api/users/:id/permissions
func (h *UserHandler) SetDirectPermissions(c *gin.Context) {
	var req setPermissionsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.SetDirectPermissions(requestContext(c), c.Param("id"), req.Permissions, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// DELETE /api/users/:id
func (h *UserHandler) Deactivate(c *gin.Context) {
	if err := h.users.Deactivate(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
