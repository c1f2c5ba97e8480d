package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/pkg/payment"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type stubAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (s *stubAudit) Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

func (s *stubAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, log := range s.logs {
		out = append(out, log.Action)
	}
	return out
}

// stubApps keeps applications in memory and applies status updates only when the
// current status matches, like the SQL repository.
type stubApps struct {
	mu     sync.Mutex
	seq    int
	rows   map[string]*models.Application
	names  map[string]string
	getErr error
	// transitionErr fails transitions into failTo.
	failTo        models.ApplicationStatus
	transitionErr error
}

func newStubApps() *stubApps {
	return &stubApps{rows: map[string]*models.Application{}, names: map[string]string{}}
}

func (s *stubApps) put(app models.Application) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	s.rows[app.ID] = &app
	cp := app
	return &cp
}

func (s *stubApps) status(id string) models.ApplicationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

func (s *stubApps) Create(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.StudentID == app.StudentID && row.AcademicYear == app.AcademicYear {
			return repository.ErrDuplicate
		}
	}
	s.seq++
	app.ID = fmt.Sprintf("app-%d", s.seq)
	app.CreatedAt = time.Now().UTC()
	app.UpdatedAt = app.CreatedAt
	cp := *app
	s.rows[app.ID] = &cp
	return nil
}

func (s *stubApps) GetByID(ctx context.Context, id string) (*models.Application, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (s *stubApps) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	return s.GetByID(ctx, id)
}

func (s *stubApps) FindByStudentAndYear(ctx context.Context, studentID, year string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.StudentID == studentID && row.AcademicYear == year {
			cp := *row
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubApps) GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	app, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ApplicationDetail{Application: *app, StudentName: s.names[app.StudentID]}, nil
}

func (s *stubApps) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ApplicationDetail
	for _, row := range s.rows {
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.AcademicYear != "" && row.AcademicYear != filter.AcademicYear {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, row.Status) {
			continue
		}
		out = append(out, models.ApplicationDetail{Application: *row, StudentName: s.names[row.StudentID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *stubApps) CommitteeQueue(ctx context.Context, year string) ([]models.ApplicationDetail, error) {
	items, _, err := s.List(ctx, models.ApplicationFilter{AcademicYear: year, Statuses: []models.ApplicationStatus{models.ApplicationStatusPending}})
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items, err
}

func (s *stubApps) UpdateRequest(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != models.ApplicationStatusPending {
		return nil, sql.ErrNoRows
	}
	row.AmountRequested = amount
	cp := *row
	return &cp, nil
}

func (s *stubApps) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ApplicationStatus, to models.ApplicationStatus, update repository.StatusUpdate) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil && to == s.failTo {
		return nil, s.transitionErr
	}
	row, ok := s.rows[id]
	if !ok || !containsStatus(from, row.Status) {
		return nil, sql.ErrNoRows
	}
	row.Status = to
	if update.Score != nil {
		row.Score = *update.Score
	}
	if update.CommitteeComments != nil {
		row.CommitteeComments = update.CommitteeComments
	}
	if update.AdminComments != nil {
		row.AdminComments = update.AdminComments
	}
	cp := *row
	return &cp, nil
}

func (s *stubApps) SetScore(ctx context.Context, exec sqlx.ExtContext, id string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != models.ApplicationStatusPending {
		return sql.ErrNoRows
	}
	row.Score = score
	return nil
}

func containsStatus(list []models.ApplicationStatus, status models.ApplicationStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

type stubDocs struct {
	mu      sync.Mutex
	bundles map[string]*models.DocumentBundle
	apps    *stubApps
	err     error
}

func newStubDocs(apps *stubApps) *stubDocs {
	return &stubDocs{bundles: map[string]*models.DocumentBundle{}, apps: apps}
}

func (s *stubDocs) Create(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if bundle.ID == "" {
		bundle.ID = "doc-" + bundle.ApplicationID
	}
	cp := *bundle
	s.bundles[bundle.ApplicationID] = &cp
	return nil
}

func (s *stubDocs) GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.DocumentBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bundle, ok := s.bundles[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *bundle
	return &cp, nil
}

func (s *stubDocs) LatestForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, excludeApplicationID string) (*models.DocumentBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.DocumentBundle
	var latestAt time.Time
	for appID, bundle := range s.bundles {
		if appID == excludeApplicationID {
			continue
		}
		app, ok := s.apps.rows[appID]
		if !ok || app.StudentID != studentID {
			continue
		}
		if latest == nil || app.CreatedAt.After(latestAt) {
			cp := *bundle
			latest, latestAt = &cp, app.CreatedAt
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (s *stubDocs) Update(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error {
	return s.Create(ctx, exec, bundle)
}

type stubPayments struct {
	mu      sync.Mutex
	records map[string]*models.Payment
	err     error
}

func newStubPayments() *stubPayments {
	return &stubPayments{records: map[string]*models.Payment{}}
}

func (s *stubPayments) GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *record
	return &cp, nil
}

func (s *stubPayments) Create(ctx context.Context, exec sqlx.ExtContext, record *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.records[record.ApplicationID]; ok {
		return repository.ErrDuplicate
	}
	record.ID = "pay-" + record.ApplicationID
	cp := *record
	s.records[record.ApplicationID] = &cp
	return nil
}

func (s *stubPayments) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type stubUsers map[string]*models.User

func (s stubUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

type stubProfiles map[string]*models.ApplicantProfile

func (s stubProfiles) GetByUserID(ctx context.Context, userID string) (*models.ApplicantProfile, error) {
	profile, ok := s[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, events ...lifecycle.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recordingDispatcher) kinds() []lifecycle.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]lifecycle.EventKind, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Kind)
	}
	return out
}

type stubGateway struct {
	mu    sync.Mutex
	calls int
	memo  string
	err   error
}

func (g *stubGateway) Disburse(ctx context.Context, phone string, amount float64, memo string) (*payment.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.memo = memo
	if g.err != nil {
		return nil, g.err
	}
	if phone == "" {
		return nil, payment.ErrMissingPhone
	}
	return &payment.Result{Reference: fmt.Sprintf("MPESA%08X", g.calls), Provider: "mpesa", SentAt: time.Now().UTC()}, nil
}

func eligibleProfile() *models.ApplicantProfile {
	return &models.ApplicantProfile{
		County:             "Nairobi",
		Constituency:       "Central",
		Ward:               "Ward 1",
		Location:           "Loc",
		SubLocation:        "Sub",
		SchoolName:         "Central High",
		AdmissionNumber:    "ADM-1",
		GuardianName:       "Parent",
		GuardianPhone:      "0700000000",
		GuardianIncome:     15000,
		HouseholdSize:      7,
		GuardianIDDocument: "documents/student-1/guardian.pdf",
	}
}
