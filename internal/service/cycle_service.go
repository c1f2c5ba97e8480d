package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/pkg/cache"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type cycleStore interface {
	List(ctx context.Context) ([]models.BursaryCycle, error)
	Active(ctx context.Context) (*models.BursaryCycle, error)
	Create(ctx context.Context, cycle *models.BursaryCycle) error
	Activate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BursaryCycle, error)
}

// CycleService manages bursary cycles. Only one cycle is active at a time.
type CycleService struct {
	cycles      cycleStore
	audit       auditRecorder
	tx          txProvider
	invalidator cacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCycleService constructs the service. invalidator may be nil.
func NewCycleService(cycles cycleStore, audit auditRecorder, tx txProvider, invalidator cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *CycleService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleService{cycles: cycles, audit: audit, tx: tx, invalidator: invalidator, validator: validate, logger: logger}
}

// List returns every cycle, newest year first.
func (s *CycleService) List(ctx context.Context, actor authz.Actor) ([]models.BursaryCycle, error) {
	if !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	cycles, err := s.cycles.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cycles")
	}
	return cycles, nil
}

// Active returns the cycle currently open for applications.
func (s *CycleService) Active(ctx context.Context) (*models.BursaryCycle, error) {
	cycle, err := s.cycles.Active(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active bursary cycle")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active cycle")
	}
	return cycle, nil
}

// Create adds an inactive cycle.
func (s *CycleService) Create(ctx context.Context, actor authz.Actor, req dto.CreateCycleRequest) (*models.BursaryCycle, error) {
	if !actor.Can(authz.ActionCycleManage, authz.Resource{Kind: "cycle"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cycle payload")
	}
	cycle := &models.BursaryCycle{Year: strings.TrimSpace(req.Year), PlannedBudget: req.PlannedBudget}
	if err := s.cycles.Create(ctx, cycle); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("A cycle for %s already exists.", cycle.Year))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cycle")
	}
	if err := s.audit.Create(ctx, nil, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionCycleCreate,
		Details:    fmt.Sprintf("Created cycle %s with budget KES %s", cycle.Year, formatAmount(cycle.PlannedBudget)),
		Resource:   "cycle",
		ResourceID: &cycle.ID,
	}); err != nil {
		s.logger.Warn("failed to audit cycle creation", zap.String("cycle_id", cycle.ID), zap.Error(err))
	}
	return cycle, nil
}

// Activate makes id the only active cycle.
func (s *CycleService) Activate(ctx context.Context, actor authz.Actor, id string) (cycle *models.BursaryCycle, err error) {
	if !actor.Can(authz.ActionCycleManage, authz.Resource{Kind: "cycle"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	cycle, err = s.cycles.Activate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "cycle not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate cycle")
		return nil, err
	}
	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionCycleActivate,
		Details:    fmt.Sprintf("Activated cycle %s", cycle.Year),
		Resource:   "cycle",
		ResourceID: &cycle.ID,
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit cycle activation")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cycle activation")
		return nil, err
	}

	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx, cache.Key(reportCacheNamespace, "*"))
	}
	s.logger.Info("bursary cycle activated", zap.String("cycle_id", cycle.ID), zap.String("year", cycle.Year))
	return cycle, nil
}
