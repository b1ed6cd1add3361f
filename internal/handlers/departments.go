package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// DepartmentHandler manages the organisational tree.
type DepartmentHandler struct {
	departments *services.DepartmentService
}

func NewDepartmentHandler(departments *services.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{departments: departments}
}

type createDepartmentRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
	ManagerID   *string `json:"manager_id"`
}

// POST /api/departments
func (h *DepartmentHandler) Create(c *gin.Context) {
	var req createDepartmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dept, err := h.departments.CreateDepartment(requestContext(c), services.CreateDepartmentInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		ManagerID:   req.ManagerID,
		PerformedBy: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dept)
}

// GET /api/departments
func (h *DepartmentHandler) List(c *gin.Context) {
	depts, err := h.departments.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, depts)
}

// GET /api/departments/:id
func (h *DepartmentHandler) Get(c *gin.Context) {
	dept, err := h.departments.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dept)
}

type updateDepartmentRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ManagerID   *string `json:"manager_id"`
}

// PATCH /api/departments/:id
func (h *DepartmentHandler) Update(c *gin.Context) {
	var req updateDepartmentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dept, err := h.departments.UpdateDepartment(requestContext(c), c.Param("id"), services.UpdateDepartmentInput{
		Name:        req.Name,
		Description: req.Description,
		ManagerID:   req.ManagerID,
		PerformedBy: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dept)
}

// DELETE /api/departments/:id
func (h *DepartmentHandler) Deactivate(c *gin.Context) {
	if err := h.departments.DeactivateDepartment(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

type reparentRequest struct {
	ParentID *string `json:"parent_id"`
}

// POST /api/departments/:id/reparent
func (h *DepartmentHandler) Reparent(c *gin.Context) {
	var req reparentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.departments.Reparent(requestContext(c), c.Param("id"), req.ParentID, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	dept, err := h.departments.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dept)
}

// GET /api/departments/:id/ancestors
func (h *DepartmentHandler) Ancestors(c *gin.Context) {
	rows, err := h.departments.Ancestors(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// GET /api/departments/:id/descendants
func (h *DepartmentHandler) Descendants(c *gin.Context) {
	rows, err := h.departments.Descendants(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}
