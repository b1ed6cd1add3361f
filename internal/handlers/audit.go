package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oakdesk/oakdesk/internal/services"
	"github.com/oakdesk/oakdesk/pkg/response"
)

// AuditHandler exposes the append-only audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	entries, total, err := h.audit.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters:  auditFiltersFromQuery(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithMeta(c, http.StatusOK, entries, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

// GET /api/audit/export
func (h *AuditHandler) Export(c *gin.Context) {
	entries, err := h.audit.Export(requestContext(c), auditFiltersFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}

func auditFiltersFromQuery(c *gin.Context) services.AuditFilters {
	filters := services.AuditFilters{
		UserID:      strings.TrimSpace(c.Query("user_id")),
		Action:      strings.TrimSpace(c.Query("action")),
		PerformedBy: strings.TrimSpace(c.Query("performed_by")),
	}

	if since := strings.TrimSpace(c.Query("since")); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = &ts
		}
	}
	if until := strings.TrimSpace(c.Query("until")); until != "" {
		if ts, err := time.Parse(time.RFC3339, until); err == nil {
			filters.Until = &ts
		}
	}

	return filters
}
