package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/pkg/cache"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/observability"
	"github.com/noah-isme/bursary-api/pkg/payment"
)

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// DisbursementService approves recommended applications and pays them out through the gateway.
type DisbursementService struct {
	apps     applicationStore
	payments paymentStore
	users    userReader
	audit    auditRecorder
	tx       txProvider
	gateway  payment.Gateway
	events   EventDispatcher
	cache    cacheInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewDisbursementService constructs a DisbursementService. cache may be nil.
func NewDisbursementService(
	apps applicationStore,
	payments paymentStore,
	users userReader,
	audit auditRecorder,
	tx txProvider,
	gateway payment.Gateway,
	events EventDispatcher,
	invalidator cacheInvalidator,
	metrics *MetricsService,
	logger *zap.Logger,
) *DisbursementService {
	if events == nil {
		events = noopDispatcher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisbursementService{
		apps:     apps,
		payments: payments,
		users:    users,
		audit:    audit,
		tx:       tx,
		gateway:  gateway,
		events:   events,
		cache:    invalidator,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Disburse pays the requested amount for one application. A recommended
// application is approved first; the approval stays committed if the payment fails.
func (s *DisbursementService) Disburse(ctx context.Context, actor authz.Actor, id string) (*models.Payment, error) {
	if !actor.Can(authz.ActionApplicationDisburse, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := s.ensureUnpaid(ctx, nil, id); err != nil {
		return nil, err
	}

	if app.Status == models.ApplicationStatusRecommended {
		app, err = s.approve(ctx, actor, app)
		if err != nil {
			return nil, err
		}
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("Application is %s and cannot be disbursed.", app.Status.Label()))
	}

	student, err := s.users.FindByID(ctx, app.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applicant")
	}

	return s.pay(ctx, actor, id, student.PhoneNumber())
}

// BulkDisburse runs Disburse for every id independently.
func (s *DisbursementService) BulkDisburse(ctx context.Context, actor authz.Actor, req dto.BulkDisburseRequest) (*dto.BulkDisbursementResult, error) {
	if !actor.Can(authz.ActionApplicationDisburse, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	if len(req.ApplicationIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "applicationIds is required")
	}

	result := &dto.BulkDisbursementResult{Results: make([]dto.DisbursementResult, 0, len(req.ApplicationIDs))}
	seen := make(map[string]struct{}, len(req.ApplicationIDs))
	for _, id := range req.ApplicationIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		item := dto.DisbursementResult{ApplicationID: id}
		paid, err := s.Disburse(ctx, actor, id)
		if err != nil {
			item.Error = appErrors.FromError(err).Message
			result.Failed++
		} else {
			item.Success = true
			item.Payment = paid
			result.Succeeded++
		}
		result.Results = append(result.Results, item)
	}
	return result, nil
}

func (s *DisbursementService) ensureUnpaid(ctx context.Context, exec sqlx.ExtContext, id string) error {
	_, err := s.payments.GetByApplicationID(ctx, exec, id)
	switch {
	case err == nil:
		return appErrors.Clone(appErrors.ErrAlreadyDisbursed, appErrors.ErrAlreadyDisbursed.Message)
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check payment")
	}
}

func (s *DisbursementService) approve(ctx context.Context, actor authz.Actor, app *models.Application) (approved *models.Application, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	approved, err = s.apps.Transition(ctx, tx, app.ID,
		[]models.ApplicationStatus{models.ApplicationStatusRecommended},
		models.ApplicationStatusApproved,
		repository.StatusUpdate{})
	if errors.Is(err, sql.ErrNoRows) {
		// Someone else moved it; continue from whatever it is now.
		rollback(tx, s.logger)
		err = nil
		current, loadErr := s.apps.GetByID(ctx, app.ID)
		if loadErr != nil {
			return nil, appErrors.Wrap(loadErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload application")
		}
		return current, nil
	}
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve application")
		return nil, err
	}

	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionApprove,
		Details:    fmt.Sprintf("Application %s approved for KES %.2f", app.ID, app.AmountRequested),
		Resource:   "application",
		ResourceID: applicationResource(app.ID),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approval")
		return nil, err
	}

	s.metrics.RecordTransition(models.ApplicationStatusRecommended, models.ApplicationStatusApproved)
	if evt, ok := lifecycle.NewTransitionEvent(approved, models.ApplicationStatusRecommended, models.ApplicationStatusApproved, lifecycle.Detail{ActorID: actor.ID}, s.now()); ok {
		s.events.Dispatch(ctx, evt)
	}
	return approved, nil
}

func (s *DisbursementService) pay(ctx context.Context, actor authz.Actor, id, phone string) (record *models.Payment, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	app, err := s.apps.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "application not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock application")
		return nil, err
	}
	if err = s.ensureUnpaid(ctx, tx, id); err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		err = appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("Application is %s and cannot be disbursed.", app.Status.Label()))
		return nil, err
	}

	memo := "Bursary " + app.AcademicYear
	receipt, gwErr := s.gateway.Disburse(ctx, phone, app.AmountRequested, memo)
	if gwErr != nil {
		err = appErrors.Wrap(gwErr, appErrors.ErrPaymentFailed.Code, appErrors.ErrPaymentFailed.Status, paymentFailureMessage(gwErr))
		rollback(tx, s.logger)
		s.recordFailure(ctx, actor, app, gwErr)
		return nil, err
	}

	record = &models.Payment{
		ApplicationID: id,
		AmountAwarded: app.AmountRequested,
		Reference:     receipt.Reference,
		Provider:      receipt.Provider,
		DisbursedBy:   &actor.ID,
		PaidAt:        receipt.SentAt,
	}
	if err = s.payments.Create(ctx, tx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			err = appErrors.Clone(appErrors.ErrAlreadyDisbursed, appErrors.ErrAlreadyDisbursed.Message)
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
		return nil, err
	}

	paid, err := s.apps.Transition(ctx, tx, id,
		[]models.ApplicationStatus{models.ApplicationStatusApproved},
		models.ApplicationStatusPaid,
		repository.StatusUpdate{})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidTransition, "Application status changed during disbursement.")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark application paid")
		return nil, err
	}

	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionDisburse,
		Details:    fmt.Sprintf("Disbursed KES %.2f for application %s. Ref: %s", record.AmountAwarded, id, record.Reference),
		Resource:   "application",
		ResourceID: applicationResource(id),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit disbursement")
		return nil, err
	}

	s.metrics.RecordTransition(models.ApplicationStatusApproved, models.ApplicationStatusPaid)
	s.metrics.RecordDisbursement(true, record.AmountAwarded)
	s.logger.Info("funds disbursed",
		zap.String("application_id", id),
		zap.String("reference", record.Reference),
		zap.Float64("amount", record.AmountAwarded),
		zap.String("actor_id", actor.ID),
	)
	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, cache.Key(reportCacheNamespace, "*")); cacheErr != nil {
			s.logger.Warn("failed to invalidate report cache", zap.Error(cacheErr))
		}
	}
	if evt, ok := lifecycle.NewTransitionEvent(paid, models.ApplicationStatusApproved, models.ApplicationStatusPaid, lifecycle.Detail{Reference: record.Reference, ActorID: actor.ID}, s.now()); ok {
		s.events.Dispatch(ctx, evt)
	}
	return record, nil
}

// recordFailure writes the failure audit outside the rolled back transaction.
func (s *DisbursementService) recordFailure(ctx context.Context, actor authz.Actor, app *models.Application, cause error) {
	s.metrics.RecordDisbursement(false, 0)
	s.logger.Warn("disbursement failed",
		zap.String("application_id", app.ID),
		zap.String("actor_id", actor.ID),
		zap.Error(cause),
	)
	if !errors.Is(cause, payment.ErrMissingPhone) {
		observability.CaptureErr(cause, map[string]string{"application_id": app.ID, "component": "disbursement"})
	}
	if err := s.audit.Create(ctx, nil, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionDisburseFailed,
		Details:    fmt.Sprintf("Payment for application %s failed: %s", app.ID, paymentFailureMessage(cause)),
		Resource:   "application",
		ResourceID: applicationResource(app.ID),
	}); err != nil {
		s.logger.Warn("failed to record disbursement failure", zap.String("application_id", app.ID), zap.Error(err))
	}
}

func paymentFailureMessage(err error) string {
	switch {
	case errors.Is(err, payment.ErrMissingPhone):
		return "Student does not have a registered phone number for M-Pesa."
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return "M-Pesa gateway is unavailable, please retry later."
	}
	return "Payment failed: " + err.Error()
}
