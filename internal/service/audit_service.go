package service

import (
	"context"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the append-only trail to administrators.
type AuditService struct {
	logs auditLister
}

// NewAuditService constructs the service.
func NewAuditService(logs auditLister) *AuditService {
	return &AuditService{logs: logs}
}

// List returns entries newest first.
func (s *AuditService) List(ctx context.Context, actor authz.Actor, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	if !actor.Can(authz.ActionAuditView, authz.Resource{Kind: "audit"}) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	page, size, _ := models.NormalisePage(filter.Page, filter.PageSize, 200)
	filter.Page, filter.PageSize = page, size
	logs, total, err := s.logs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
