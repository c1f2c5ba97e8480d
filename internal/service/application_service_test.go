package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/screening"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

var (
	studentActor   = authz.Actor{ID: "student-1", Role: models.RoleStudent}
	committeeActor = authz.Actor{ID: "committee-1", Role: models.RoleCommittee}
	adminActor     = authz.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

type appFixture struct {
	svc      *ApplicationService
	apps     *stubApps
	docs     *stubDocs
	audit    *stubAudit
	events   *recordingDispatcher
	users    stubUsers
	profiles stubProfiles
	mock     sqlmock.Sqlmock
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	apps := newStubApps()
	apps.names["student-1"] = "Jane Wanjiru"
	central := "Central"
	phone := "0712345678"
	users := stubUsers{
		"student-1": {ID: "student-1", FullName: "Jane Wanjiru", Email: "jane@example.com", Role: models.RoleStudent, Constituency: &central, Phone: &phone, Active: true},
		"student-2": {ID: "student-2", FullName: "Otieno Ouma", Email: "otieno@example.com", Role: models.RoleStudent, Active: true},
	}
	profiles := stubProfiles{"student-1": eligibleProfile()}
	engine, err := screening.NewEngine(screening.DefaultPolicy())
	require.NoError(t, err)

	fx := &appFixture{
		apps:     apps,
		docs:     newStubDocs(apps),
		audit:    &stubAudit{},
		events:   &recordingDispatcher{},
		users:    users,
		profiles: profiles,
		mock:     mock,
	}
	fx.svc = NewApplicationService(apps, fx.docs, users, profiles, fx.audit, tx, engine, nil, zap.NewNop(), ApplicationConfig{MinAmount: 1000, MaxAmount: 50000},
		WithApplicationEvents(fx.events))
	return fx
}

func submitRequest() dto.SubmitApplicationRequest {
	return dto.SubmitApplicationRequest{
		AcademicYear:    "2025/2026",
		AmountRequested: 20000,
		Documents: dto.DocumentRefs{
			IDCard:       "documents/student-1/id.pdf",
			FeeStructure: "documents/student-1/fees.pdf",
		},
	}
}

func TestApplicationServiceSubmitScoresEligibleApplicant(t *testing.T) {
	fx := newAppFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	res, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.NoError(t, err)

	assert.True(t, res.Screening.Passed)
	assert.Equal(t, 40+30+15, res.Application.Score)
	assert.Equal(t, models.ApplicationStatusPending, fx.apps.status(res.Application.ID))
	assert.Equal(t, []string{models.AuditActionSubmit}, fx.audit.actions())
	assert.Equal(t, []lifecycle.EventKind{lifecycle.EventSubmitted}, fx.events.kinds())
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceSubmitFirstTimeApplicantGetsPriorityPoints(t *testing.T) {
	fx := newAppFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	req := submitRequest()
	req.Documents.AdmissionLetter = "documents/student-1/admission.pdf"
	res, err := fx.svc.Submit(context.Background(), studentActor, req)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Application.Score)
	assert.Equal(t, 30, res.Screening.Breakdown.Documents)
}

func TestApplicationServiceSubmitAutoRejectsOutsideConstituency(t *testing.T) {
	fx := newAppFixture(t)
	westlands := "Westlands"
	fx.users["student-1"].Constituency = &westlands
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	res, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.NoError(t, err)

	reason := screening.ConstituencyReason("Central")
	assert.False(t, res.Screening.Passed)
	assert.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
	require.NotNil(t, res.Application.AdminComments)
	assert.Equal(t, "AUTO-REJECTION: "+reason, *res.Application.AdminComments)

	require.Len(t, fx.audit.logs, 2)
	system := fx.audit.logs[1]
	assert.Nil(t, system.UserID)
	assert.Equal(t, models.AuditActionAutoReject, system.Action)
	assert.Equal(t, "Application "+res.Application.ID+" rejected: "+reason, system.Details)

	assert.Equal(t, []lifecycle.EventKind{lifecycle.EventSubmitted, lifecycle.EventRejected}, fx.events.kinds())
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceSubmitMissingProfileAutoRejects(t *testing.T) {
	fx := newAppFixture(t)
	delete(fx.profiles, "student-1")
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	res, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.NoError(t, err)
	assert.Equal(t, screening.ReasonProfileIncomplete, res.Screening.Reason)
	assert.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
}

func TestApplicationServiceSubmitDuplicateMutatesNothing(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "existing", StudentID: "student-1", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending})

	_, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateApplication.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.audit.logs)
	assert.Empty(t, fx.events.kinds())
	assert.Len(t, fx.apps.rows, 1)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceSubmitValidatesRequest(t *testing.T) {
	fx := newAppFixture(t)

	cases := map[string]func(*dto.SubmitApplicationRequest){
		"amount below minimum": func(r *dto.SubmitApplicationRequest) { r.AmountRequested = 500 },
		"amount above maximum": func(r *dto.SubmitApplicationRequest) { r.AmountRequested = 50001 },
		"malformed year":       func(r *dto.SubmitApplicationRequest) { r.AcademicYear = "2025" },
		"foreign document":     func(r *dto.SubmitApplicationRequest) { r.Documents.IDCard = "documents/student-2/id.pdf" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := submitRequest()
			mutate(&req)
			_, err := fx.svc.Submit(context.Background(), studentActor, req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, fx.apps.rows)
}

func TestApplicationServiceSubmitRequiresStudentRole(t *testing.T) {
	fx := newAppFixture(t)
	_, err := fx.svc.Submit(context.Background(), adminActor, submitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceSubmitInheritsIdentityDocument(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "prior", StudentID: "student-1", AcademicYear: "2024/2025", Status: models.ApplicationStatusPaid, CreatedAt: time.Now().Add(-365 * 24 * time.Hour)})
	require.NoError(t, fx.docs.Create(context.Background(), nil, &models.DocumentBundle{
		ApplicationID:   "prior",
		IDCard:          "documents/student-1/old-id.pdf",
		FeeStructure:    "documents/student-1/old-fees.pdf",
		AdmissionLetter: "documents/student-1/admission.pdf",
	}))
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	req := submitRequest()
	req.Documents.IDCard = ""
	res, err := fx.svc.Submit(context.Background(), studentActor, req)
	require.NoError(t, err)

	assert.Equal(t, "documents/student-1/old-id.pdf", res.Documents.IDCard)
	assert.Equal(t, "documents/student-1/fees.pdf", res.Documents.FeeStructure)
	assert.Empty(t, res.Documents.AdmissionLetter)
	assert.True(t, res.Screening.Passed)
}

func TestApplicationServiceSubmitWithoutIdentityDocumentAutoRejects(t *testing.T) {
	fx := newAppFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	req := submitRequest()
	req.Documents.IDCard = ""
	res, err := fx.svc.Submit(context.Background(), studentActor, req)
	require.NoError(t, err)
	assert.Equal(t, screening.ReasonMissingDocuments, res.Screening.Reason)
	assert.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
}

func TestApplicationServiceEditRescreensPendingApplication(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "app-9", StudentID: "student-1", AcademicYear: "2025/2026", AmountRequested: 10000, Status: models.ApplicationStatusPending})
	require.NoError(t, fx.docs.Create(context.Background(), nil, &models.DocumentBundle{ApplicationID: "app-9", IDCard: "documents/student-1/id.pdf", FeeStructure: "documents/student-1/fees.pdf"}))
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	res, err := fx.svc.Edit(context.Background(), studentActor, "app-9", dto.EditApplicationRequest{AmountRequested: 25000})
	require.NoError(t, err)
	assert.Equal(t, 25000.0, res.Application.AmountRequested)
	assert.Equal(t, 85, res.Application.Score)
	assert.Equal(t, []string{models.AuditActionEdit}, fx.audit.actions())
	assert.Empty(t, fx.events.kinds())
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceEditFailingScreeningAutoRejects(t *testing.T) {
	fx := newAppFixture(t)
	fx.profiles["student-1"].GuardianIncome = 200000
	fx.apps.put(models.Application{ID: "app-9", StudentID: "student-1", AcademicYear: "2025/2026", AmountRequested: 10000, Status: models.ApplicationStatusPending})
	require.NoError(t, fx.docs.Create(context.Background(), nil, &models.DocumentBundle{ApplicationID: "app-9", IDCard: "documents/student-1/id.pdf", FeeStructure: "documents/student-1/fees.pdf"}))
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	res, err := fx.svc.Edit(context.Background(), studentActor, "app-9", dto.EditApplicationRequest{AmountRequested: 12000})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
	assert.Equal(t, []string{models.AuditActionEdit, models.AuditActionAutoReject}, fx.audit.actions())
	assert.Equal(t, []lifecycle.EventKind{lifecycle.EventRejected}, fx.events.kinds())
}

func TestApplicationServiceEditGuards(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "pending", StudentID: "student-1", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending})
	fx.apps.put(models.Application{ID: "recommended", StudentID: "student-1", AcademicYear: "2024/2025", Status: models.ApplicationStatusRecommended})

	other := authz.Actor{ID: "student-2", Role: models.RoleStudent}
	_, err := fx.svc.Edit(context.Background(), other, "pending", dto.EditApplicationRequest{AmountRequested: 5000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Edit(context.Background(), studentActor, "recommended", dto.EditApplicationRequest{AmountRequested: 5000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Edit(context.Background(), studentActor, "missing", dto.EditApplicationRequest{AmountRequested: 5000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceGetHidesOtherStudentsApplications(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "app-1", StudentID: "student-1", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending})

	view, err := fx.svc.Get(context.Background(), studentActor, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Pending Review", view.StatusLabel)

	_, err = fx.svc.Get(context.Background(), authz.Actor{ID: "student-2", Role: models.RoleStudent}, "app-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Get(context.Background(), committeeActor, "app-1")
	require.NoError(t, err)
}

func TestApplicationServiceCommitteeQueueOrdersByScore(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "a", StudentID: "s1", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending, Score: 40})
	fx.apps.put(models.Application{ID: "b", StudentID: "s2", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending, Score: 90})
	fx.apps.put(models.Application{ID: "c", StudentID: "s3", AcademicYear: "2025/2026", Status: models.ApplicationStatusRejected})

	_, err := fx.svc.CommitteeQueue(context.Background(), studentActor, "2025/2026")
	require.Error(t, err)

	queue, err := fx.svc.CommitteeQueue(context.Background(), committeeActor, "2025/2026")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "b", queue[0].ID)
}

func TestApplicationServiceListMineScopesToCaller(t *testing.T) {
	fx := newAppFixture(t)
	fx.apps.put(models.Application{ID: "mine", StudentID: "student-1", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending})
	fx.apps.put(models.Application{ID: "theirs", StudentID: "student-2", AcademicYear: "2025/2026", Status: models.ApplicationStatusPending})

	items, page, err := fx.svc.ListMine(context.Background(), studentActor, 1, 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "mine", items[0].ID)
	assert.Equal(t, 1, page.TotalCount)
}

func TestApplicationServiceSubmitRollsBackWhenBundleWriteFails(t *testing.T) {
	fx := newAppFixture(t)
	fx.docs.err = errors.New("disk full")
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	res, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.audit.logs)
	assert.Empty(t, fx.events.kinds())
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestApplicationServiceSubmitRollsBackWhenAuditWriteFails(t *testing.T) {
	fx := newAppFixture(t)
	fx.audit.err = errors.New("audit table locked")
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.svc.Submit(context.Background(), studentActor, submitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.events.kinds())
	require.NoError(t, fx.mock.ExpectationsWereMet())
}
