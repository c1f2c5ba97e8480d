package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

// ReviewService handles committee recommendations and administrative rejections.
type ReviewService struct {
	apps      applicationStore
	audit     auditRecorder
	tx        txProvider
	events    EventDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReviewService constructs a ReviewService.
func NewReviewService(apps applicationStore, audit auditRecorder, tx txProvider, events EventDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if events == nil {
		events = noopDispatcher{}
	}
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		apps:      apps,
		audit:     audit,
		tx:        tx,
		events:    events,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Recommend moves a pending application to recommended with the committee's score.
func (s *ReviewService) Recommend(ctx context.Context, actor authz.Actor, id string, req dto.RecommendRequest) (*models.Application, error) {
	if !actor.Can(authz.ActionApplicationReview, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	score := req.Score
	comments := req.Comments
	return s.move(ctx, actor, id,
		[]models.ApplicationStatus{models.ApplicationStatusPending},
		models.ApplicationStatusRecommended,
		repository.StatusUpdate{Score: &score, CommitteeComments: &comments},
		models.AuditActionReview,
		fmt.Sprintf("Application %s recommended with score %d", id, score),
		"")
}

// Reject closes a pending or recommended application with a reason.
func (s *ReviewService) Reject(ctx context.Context, actor authz.Actor, id string, req dto.RejectRequest) (*models.Application, error) {
	if !actor.Can(authz.ActionApplicationReject, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rejection payload")
	}

	reason := req.Reason
	return s.move(ctx, actor, id,
		lifecycle.Sources(models.ApplicationStatusRejected),
		models.ApplicationStatusRejected,
		repository.StatusUpdate{AdminComments: &reason},
		models.AuditActionReject,
		fmt.Sprintf("Application %s rejected: %s", id, reason),
		reason)
}

func (s *ReviewService) move(
	ctx context.Context,
	actor authz.Actor,
	id string,
	from []models.ApplicationStatus,
	to models.ApplicationStatus,
	update repository.StatusUpdate,
	action, details, reason string,
) (app *models.Application, err error) {
	current, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !lifecycle.CanTransition(current.Status, to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("Application is %s and cannot move to %s.", current.Status, to))
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

	app, err = s.apps.Transition(ctx, tx, id, from, to, update)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidTransition, "Application status changed; reload and try again.")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
		return nil, err
	}

	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Details:    details,
		Resource:   "application",
		ResourceID: applicationResource(id),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit review")
		return nil, err
	}

	s.metrics.RecordTransition(current.Status, to)
	s.logger.Info("application reviewed",
		zap.String("application_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID),
	)
	if evt, ok := lifecycle.NewTransitionEvent(app, current.Status, to, lifecycle.Detail{Reason: reason, ActorID: actor.ID}, s.now()); ok {
		s.events.Dispatch(ctx, evt)
	}
	return app, nil
}
