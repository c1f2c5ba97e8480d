package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type stubReports struct {
	totals      models.ApplicationTotals
	used        float64
	history     []models.FinancialYear
	disbursed   float64
	students    int
	totalsCalls int
}

func (s *stubReports) Totals(ctx context.Context, year string) (models.ApplicationTotals, error) {
	s.totalsCalls++
	return s.totals, nil
}

func (s *stubReports) BudgetUsed(ctx context.Context, year string) (float64, error) {
	return s.used, nil
}

func (s *stubReports) StatusCounts(ctx context.Context, year string) ([]models.StatusCount, error) {
	return []models.StatusCount{{Status: models.ApplicationStatusPaid, Count: s.totals.Paid}}, nil
}

func (s *stubReports) ScoreDistribution(ctx context.Context, year string) ([]models.ScoreBucket, error) {
	return []models.ScoreBucket{{Label: "0-20", Min: 0, Max: 20}}, nil
}

func (s *stubReports) FinancialHistory(ctx context.Context) ([]models.FinancialYear, error) {
	return s.history, nil
}

func (s *stubReports) Disbursed(ctx context.Context) (float64, int, error) {
	return s.disbursed, s.students, nil
}

type stubRecent []models.PaymentSummary

func (s stubRecent) Recent(ctx context.Context, limit int) ([]models.PaymentSummary, error) {
	return s, nil
}

type stubActiveCycle struct {
	cycle *models.BursaryCycle
}

func (s stubActiveCycle) Active(ctx context.Context) (*models.BursaryCycle, error) {
	if s.cycle == nil {
		return nil, sql.ErrNoRows
	}
	return s.cycle, nil
}

type memoryCacheRepo struct {
	values map[string]interface{}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	value, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *models.TransparencySummary:
		*d = *value.(*models.TransparencySummary)
	case *models.DashboardStats:
		*d = *value.(*models.DashboardStats)
	}
	return nil
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.values = map[string]interface{}{}
	return nil
}

func TestReportServiceDashboardComputesBudget(t *testing.T) {
	reports := &stubReports{
		totals: models.ApplicationTotals{Total: 10, Approved: 4, Paid: 3, AutoRejected: 2, AverageScore: 61.5},
		used:   45000,
	}
	svc := NewReportService(ReportServiceParams{
		Reports:  reports,
		Payments: stubRecent{{Payment: models.Payment{ID: "p1", AmountAwarded: 15000}, StudentName: "Jane"}},
		Cycles:   stubActiveCycle{cycle: &models.BursaryCycle{ID: "c1", Year: "2025/2026", PlannedBudget: 100000, IsActive: true}},
		Logger:   zap.NewNop(),
	})

	stats, cached, err := svc.Dashboard(context.Background(), committeeActor, "")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 40.0, stats.ApprovalRate)
	assert.Equal(t, 100000.0, stats.PlannedBudget)
	assert.Equal(t, 55000.0, stats.RemainingBudget)
	assert.Len(t, stats.RecentPayments, 1)
	assert.Equal(t, 2, stats.Totals.AutoRejected)
}

func TestReportServiceDashboardWithoutActiveCycle(t *testing.T) {
	svc := NewReportService(ReportServiceParams{Reports: &stubReports{}, Payments: stubRecent{}, Cycles: stubActiveCycle{}})

	stats, _, err := svc.Dashboard(context.Background(), adminActor, "2025/2026")
	require.NoError(t, err)
	assert.Nil(t, stats.ActiveCycle)
	assert.Zero(t, stats.ApprovalRate)
}

func TestReportServiceDashboardRequiresStaff(t *testing.T) {
	svc := NewReportService(ReportServiceParams{Reports: &stubReports{}, Payments: stubRecent{}})
	_, _, err := svc.Dashboard(context.Background(), studentActor, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceTransparencyIsCached(t *testing.T) {
	reports := &stubReports{disbursed: 250000, students: 12}
	repo := &memoryCacheRepo{values: map[string]interface{}{}}
	cache := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)
	svc := NewReportService(ReportServiceParams{Reports: reports, Payments: stubRecent{}, Cycles: stubActiveCycle{}, Cache: cache})

	first, hit, err := svc.Transparency(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 250000.0, first.TotalDisbursed)
	assert.Equal(t, 12, first.StudentsHelped)

	reports.disbursed = 1
	second, hit, err := svc.Transparency(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 250000.0, second.TotalDisbursed)

	require.NoError(t, cache.Invalidate(context.Background(), "bursary:reports:*"))
	third, hit, err := svc.Transparency(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, third.TotalDisbursed)
}

func TestReportServiceFinancialHistory(t *testing.T) {
	reports := &stubReports{history: []models.FinancialYear{{AcademicYear: "2024/2025", PaidCount: 3, TotalPaid: 45000}}}
	svc := NewReportService(ReportServiceParams{Reports: reports, Payments: stubRecent{}})

	history, err := svc.FinancialHistory(context.Background(), adminActor)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 45000.0, history[0].TotalPaid)
}
