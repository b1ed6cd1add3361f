package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// RoleHandler manages the role and permission catalog.
type RoleHandler struct {
	roles *services.RoleService
}

func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

type createRoleRequest struct {
	Name           string `json:"name" validate:"required"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	HierarchyLevel int    `json:"hierarchy_level" validate:"min=0"`
}

// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var req createRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.roles.CreateRole(requestContext(c), services.CreateRoleInput{
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		HierarchyLevel: req.HierarchyLevel,
		PerformedBy:    currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, role)
}

// GET /api/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.ListRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

type updateRoleRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// PATCH /api/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.roles.UpdateRole(requestContext(c), c.Param("id"), services.UpdateRoleInput{
		DisplayName: req.DisplayName,
		Description: req.Description,
		PerformedBy: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, role)
}

// DELETE /api/roles/:id
func (h *RoleHandler) Deactivate(c *gin.Context) {
	if err := h.roles.DeactivateRole(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

// PUT /api/roles/:id/permissions
func (h *RoleHandler) SetPermissions(c *gin.Context) {
	var req setRolePermissionsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.roles.SetRolePermissions(requestContext(c), c.Param("id"), req.Permissions, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Resource    string `json:"resource" validate:"required"`
	Action      string `json:"action" validate:"required"`
}

// POST /api/permissions
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	var req createPermissionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	perm, err := h.roles.CreatePermission(requestContext(c), services.CreatePermissionInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Resource:    req.Resource,
		Action:      req.Action,
		PerformedBy: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, perm)
}

// GET /api/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.roles.ListPermissions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}

// DELETE /api/permissions/:id
func (h *RoleHandler) DeactivatePermission(c *gin.Context) {
	if err := h.roles.DeactivatePermission(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
