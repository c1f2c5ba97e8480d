package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/internal/screening"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

// ApplicationConfig bounds the requested amount.
type ApplicationConfig struct {
	MinAmount float64
	MaxAmount float64
}

type documentLinker interface {
	Links(ownerID string, bundle *models.DocumentBundle) map[string]string
}

// ApplicationOption customises an ApplicationService.
type ApplicationOption func(*ApplicationService)

// WithApplicationEvents sets the dispatcher that receives committed events.
func WithApplicationEvents(events EventDispatcher) ApplicationOption {
	return func(s *ApplicationService) {
		if events != nil {
			s.events = events
		}
	}
}

// WithApplicationMetrics records screening outcomes.
func WithApplicationMetrics(metrics *MetricsService) ApplicationOption {
	return func(s *ApplicationService) { s.metrics = metrics }
}

// WithApplicationPayments attaches payment records to application views.
func WithApplicationPayments(payments paymentStore) ApplicationOption {
	return func(s *ApplicationService) { s.payments = payments }
}

// WithDocumentLinks adds signed download links to application views.
func WithDocumentLinks(linker documentLinker) ApplicationOption {
	return func(s *ApplicationService) { s.links = linker }
}

// ApplicationService runs submission, editing and listing of applications.
type ApplicationService struct {
	apps      applicationStore
	docs      documentStore
	users     userReader
	profiles  profileReader
	audit     auditRecorder
	tx        txProvider
	engine    *screening.Engine
	events    EventDispatcher
	metrics   *MetricsService
	payments  paymentStore
	links     documentLinker
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ApplicationConfig
	now       func() time.Time
}

// NewApplicationService wires the application workflow.
func NewApplicationService(
	apps applicationStore,
	docs documentStore,
	users userReader,
	profiles profileReader,
	audit auditRecorder,
	tx txProvider,
	engine *screening.Engine,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ApplicationConfig,
	opts ...ApplicationOption,
) *ApplicationService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinAmount <= 0 {
		cfg.MinAmount = 1000
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 50000
	}
	svc := &ApplicationService{
		apps:      apps,
		docs:      docs,
		users:     users,
		profiles:  profiles,
		audit:     audit,
		tx:        tx,
		engine:    engine,
		events:    noopDispatcher{},
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit creates an application with its document bundle and screens it in one transaction.
func (s *ApplicationService) Submit(ctx context.Context, actor authz.Actor, req dto.SubmitApplicationRequest) (result *dto.SubmissionResult, err error) {
	if !actor.Can(authz.ActionApplicationSubmit, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	if err := s.checkRequest(actor.ID, req.AmountRequested, req.Documents); err != nil {
		return nil, err
	}

	if _, err := s.apps.FindByStudentAndYear(ctx, actor.ID, req.AcademicYear); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateApplication, fmt.Sprintf("You have already applied for the %s academic year.", req.AcademicYear))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing applications")
	}

	input, err := s.screeningInput(ctx, actor.ID)
	if err != nil {
		return nil, err
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

	app := &models.Application{
		StudentID:       actor.ID,
		AcademicYear:    req.AcademicYear,
		AmountRequested: req.AmountRequested,
		Status:          models.ApplicationStatusPending,
	}
	if err = s.apps.Create(ctx, tx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			err = appErrors.Clone(appErrors.ErrDuplicateApplication, fmt.Sprintf("You have already applied for the %s academic year.", req.AcademicYear))
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
		return nil, err
	}

	bundle := &models.DocumentBundle{
		ApplicationID:   app.ID,
		IDCard:          req.Documents.IDCard,
		FeeStructure:    req.Documents.FeeStructure,
		AdmissionLetter: req.Documents.AdmissionLetter,
	}
	if err = s.inheritIdentity(ctx, tx, actor.ID, bundle); err != nil {
		return nil, err
	}
	if err = s.docs.Create(ctx, tx, bundle); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store documents")
		return nil, err
	}

	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionSubmit,
		Details:    fmt.Sprintf("Application %s submitted for %s requesting KES %.2f", app.ID, app.AcademicYear, app.AmountRequested),
		Resource:   "application",
		ResourceID: applicationResource(app.ID),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
		return nil, err
	}

	input.Bundle = bundle
	verdict := s.engine.Evaluate(input)
	events := []lifecycle.Event{lifecycle.Submitted(app, actor.ID, s.now())}

	app, evt, err := s.applyVerdict(ctx, tx, app, verdict)
	if err != nil {
		return nil, err
	}
	if evt != nil {
		events = append(events, *evt)
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit application")
		return nil, err
	}

	s.metrics.RecordScreening(verdict.Passed, "submit")
	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("student_id", actor.ID),
		zap.Bool("screening_passed", verdict.Passed),
		zap.Int("score", verdict.Score),
	)
	s.events.Dispatch(ctx, events...)

	return &dto.SubmissionResult{Application: app, Documents: bundle, Screening: verdict, Events: events}, nil
}

// Edit lets the owner change a pending application. The application is screened again.
func (s *ApplicationService) Edit(ctx context.Context, actor authz.Actor, id string, req dto.EditApplicationRequest) (result *dto.SubmissionResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	current, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.Can(authz.ActionApplicationEdit, authz.Resource{Kind: "application", OwnerID: current.StudentID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only edit your own applications")
	}
	if !lifecycle.Editable(current.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "You cannot edit an application that is already being processed.")
	}
	if err := s.checkRequest(actor.ID, req.AmountRequested, req.Documents); err != nil {
		return nil, err
	}

	input, err := s.screeningInput(ctx, actor.ID)
	if err != nil {
		return nil, err
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

	app, err := s.apps.UpdateRequest(ctx, tx, id, req.AmountRequested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidTransition, "You cannot edit an application that is already being processed.")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
		return nil, err
	}

	bundle, err := s.docs.GetByApplicationID(ctx, tx, id)
	missing := errors.Is(err, sql.ErrNoRows)
	if err != nil && !missing {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
		return nil, err
	}
	if missing {
		bundle = &models.DocumentBundle{ApplicationID: id}
	}
	if req.Documents.IDCard != "" {
		bundle.IDCard = req.Documents.IDCard
	}
	if req.Documents.FeeStructure != "" {
		bundle.FeeStructure = req.Documents.FeeStructure
	}
	if req.Documents.AdmissionLetter != "" {
		bundle.AdmissionLetter = req.Documents.AdmissionLetter
	}
	if err = s.inheritIdentity(ctx, tx, actor.ID, bundle); err != nil {
		return nil, err
	}
	if missing {
		err = s.docs.Create(ctx, tx, bundle)
	} else {
		err = s.docs.Update(ctx, tx, bundle)
	}
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store documents")
		return nil, err
	}

	if err = s.audit.Create(ctx, tx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionEdit,
		Details:    fmt.Sprintf("Application %s updated: amount KES %.2f", id, req.AmountRequested),
		Resource:   "application",
		ResourceID: applicationResource(id),
	}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
		return nil, err
	}

	input.Bundle = bundle
	verdict := s.engine.Evaluate(input)
	app, evt, err := s.applyVerdict(ctx, tx, app, verdict)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit application")
		return nil, err
	}

	s.metrics.RecordScreening(verdict.Passed, "edit")
	var events []lifecycle.Event
	if evt != nil {
		events = append(events, *evt)
		s.events.Dispatch(ctx, events...)
	}
	return &dto.SubmissionResult{Application: app, Documents: bundle, Screening: verdict, Events: events}, nil
}

// Get returns one application with documents and payment. Students only see their own.
func (s *ApplicationService) Get(ctx context.Context, actor authz.Actor, id string) (*dto.ApplicationView, error) {
	detail, err := s.apps.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.Can(authz.ActionApplicationView, authz.Resource{Kind: "application", OwnerID: detail.StudentID}) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}

	view := &dto.ApplicationView{ApplicationDetail: detail, StatusLabel: detail.Status.Label()}
	bundle, err := s.docs.GetByApplicationID(ctx, nil, id)
	switch {
	case err == nil:
		view.Documents = bundle
		if s.links != nil {
			view.DocumentLinks = s.links.Links(detail.StudentID, bundle)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	if s.payments != nil {
		payment, err := s.payments.GetByApplicationID(ctx, nil, id)
		switch {
		case err == nil:
			view.Payment = payment
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
		}
	}
	return view, nil
}

// ListMine returns the caller's applications, newest first.
func (s *ApplicationService) ListMine(ctx context.Context, actor authz.Actor, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error) {
	if actor.ID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing user context")
	}
	return s.list(ctx, models.ApplicationFilter{StudentID: actor.ID, Page: page, PageSize: pageSize})
}

// List returns applications for staff.
func (s *ApplicationService) List(ctx context.Context, actor authz.Actor, query dto.ApplicationQuery) ([]models.ApplicationDetail, *models.Pagination, error) {
	if !actor.Can(authz.ActionApplicationList, authz.Resource{Kind: "application"}) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	return s.list(ctx, models.ApplicationFilter{
		AcademicYear: query.AcademicYear,
		Statuses:     query.Status,
		Search:       query.Search,
		Page:         query.Page,
		PageSize:     query.PageSize,
		SortBy:       query.SortBy,
		SortOrder:    query.SortOrder,
	})
}

// CommitteeQueue lists pending applications ordered by score, highest first.
func (s *ApplicationService) CommitteeQueue(ctx context.Context, actor authz.Actor, year string) ([]models.ApplicationDetail, error) {
	if !actor.Can(authz.ActionApplicationReview, authz.Resource{Kind: "application"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	items, err := s.apps.CommitteeQueue(ctx, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	return items, nil
}

func (s *ApplicationService) list(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, *models.Pagination, error) {
	items, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page, size, _ := models.NormalisePage(filter.Page, filter.PageSize, 500)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ApplicationService) checkRequest(studentID string, amount float64, docs dto.DocumentRefs) error {
	if amount < s.cfg.MinAmount || amount > s.cfg.MaxAmount {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("amount requested must be between KES %.0f and KES %.0f", s.cfg.MinAmount, s.cfg.MaxAmount))
	}
	for _, ref := range []string{docs.IDCard, docs.FeeStructure, docs.AdmissionLetter} {
		if ref != "" && !OwnsDocument(studentID, ref) {
			return appErrors.Clone(appErrors.ErrValidation, "document reference does not belong to the applicant")
		}
	}
	return nil
}

func (s *ApplicationService) screeningInput(ctx context.Context, studentID string) (screening.Input, error) {
	user, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return screening.Input{}, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return screening.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applicant")
	}
	input := screening.Input{Constituency: user.RegisteredConstituency()}
	profile, err := s.profiles.GetByUserID(ctx, studentID)
	switch {
	case err == nil:
		input.Profile = profile
	case !errors.Is(err, sql.ErrNoRows):
		return screening.Input{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return input, nil
}

// inheritIdentity copies the identity document from the student's latest other bundle when it is blank.
func (s *ApplicationService) inheritIdentity(ctx context.Context, tx sqlx.ExtContext, studentID string, bundle *models.DocumentBundle) error {
	if bundle.IDCard != "" {
		return nil
	}
	prior, err := s.docs.LatestForStudent(ctx, tx, studentID, bundle.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous documents")
	}
	bundle.IDCard = prior.IDCard
	return nil
}

// applyVerdict persists the score or auto-rejects the pending application.
func (s *ApplicationService) applyVerdict(ctx context.Context, tx sqlx.ExtContext, app *models.Application, verdict screening.Result) (*models.Application, *lifecycle.Event, error) {
	if verdict.Passed {
		if err := s.apps.SetScore(ctx, tx, app.ID, verdict.Score); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store screening score")
		}
		app.Score = verdict.Score
		return app, nil, nil
	}

	comment := models.AutoRejectionPrefix + verdict.Reason
	zero := 0
	rejected, err := s.apps.Transition(ctx, tx, app.ID,
		[]models.ApplicationStatus{models.ApplicationStatusPending},
		models.ApplicationStatusRejected,
		repository.StatusUpdate{Score: &zero, AdminComments: &comment})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "application changed during screening")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject application")
	}
	if err := s.audit.Create(ctx, tx, &models.AuditLog{
		Action:     models.AuditActionAutoReject,
		Details:    fmt.Sprintf("Application %s rejected: %s", app.ID, verdict.Reason),
		Resource:   "application",
		ResourceID: applicationResource(app.ID),
	}); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit log")
	}

	evt, ok := lifecycle.NewTransitionEvent(rejected, models.ApplicationStatusPending, models.ApplicationStatusRejected, lifecycle.Detail{Reason: verdict.Reason}, s.now())
	if !ok {
		return rejected, nil, nil
	}
	return rejected, &evt, nil
}
