package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, actor authz.Actor, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List audit log entries
// @Tags Audit
// @Produce json
// @Param action query string false "Action"
// @Param resource query string false "Resource kind"
// @Param resourceId query string false "Resource ID"
// @Param userId query string false "Actor ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	logs, pagination, err := h.service.List(c.Request.Context(), actor, models.AuditFilter{
		Action:     strings.TrimSpace(c.Query("action")),
		Resource:   strings.TrimSpace(c.Query("resource")),
		ResourceID: strings.TrimSpace(c.Query("resourceId")),
		UserID:     strings.TrimSpace(c.Query("userId")),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 50),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
