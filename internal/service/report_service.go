package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/cache"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

const reportCacheNamespace = "reports"

type reportReader interface {
	Totals(ctx context.Context, year string) (models.ApplicationTotals, error)
	BudgetUsed(ctx context.Context, year string) (float64, error)
	StatusCounts(ctx context.Context, year string) ([]models.StatusCount, error)
	ScoreDistribution(ctx context.Context, year string) ([]models.ScoreBucket, error)
	FinancialHistory(ctx context.Context) ([]models.FinancialYear, error)
	Disbursed(ctx context.Context) (float64, int, error)
}

type recentPayments interface {
	Recent(ctx context.Context, limit int) ([]models.PaymentSummary, error)
}

type activeCycleReader interface {
	Active(ctx context.Context) (*models.BursaryCycle, error)
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Reports  reportReader
	Payments recentPayments
	Cycles   activeCycleReader
	Cache    *CacheService
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// ReportService composes the staff dashboard, financial history and public transparency data.
type ReportService struct {
	reports  reportReader
	payments recentPayments
	cycles   activeCycleReader
	cache    *CacheService
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportService{
		reports:  params.Reports,
		payments: params.Payments,
		cycles:   params.Cycles,
		cache:    params.Cache,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard returns staff statistics, optionally for one academic year.
// The bool reports whether the payload came from cache.
func (s *ReportService) Dashboard(ctx context.Context, actor authz.Actor, year string) (*models.DashboardStats, bool, error) {
	if !actor.Can(authz.ActionReportView, authz.Resource{Kind: "report"}) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	key := cache.Key(reportCacheNamespace, "dashboard", year)
	var cached models.DashboardStats
	if s.lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	totals, err := s.reports.Totals(ctx, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application totals")
	}
	used, err := s.reports.BudgetUsed(ctx, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load budget usage")
	}
	counts, err := s.reports.StatusCounts(ctx, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status counts")
	}
	buckets, err := s.reports.ScoreDistribution(ctx, year)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load score distribution")
	}
	recent, err := s.payments.Recent(ctx, 10)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent payments")
	}
	cycle, err := s.activeCycle(ctx)
	if err != nil {
		return nil, false, err
	}

	stats := &models.DashboardStats{
		Totals:            totals,
		BudgetUsed:        used,
		ActiveCycle:       cycle,
		StatusCounts:      counts,
		ScoreDistribution: buckets,
		RecentPayments:    recent,
		GeneratedAt:       s.now(),
	}
	if totals.Total > 0 {
		stats.ApprovalRate = float64(totals.Approved) / float64(totals.Total) * 100
	}
	if cycle != nil {
		stats.PlannedBudget = cycle.PlannedBudget
		stats.RemainingBudget = cycle.PlannedBudget - used
	}

	s.store(ctx, key, stats)
	return stats, false, nil
}

// FinancialHistory returns paid totals per academic year.
func (s *ReportService) FinancialHistory(ctx context.Context, actor authz.Actor) ([]models.FinancialYear, error) {
	if !actor.Can(authz.ActionReportView, authz.Resource{Kind: "report"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	history, err := s.reports.FinancialHistory(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load financial history")
	}
	return history, nil
}

// Transparency returns the public summary. It needs no authentication.
func (s *ReportService) Transparency(ctx context.Context) (*models.TransparencySummary, bool, error) {
	key := cache.Key(reportCacheNamespace, "transparency")
	var cached models.TransparencySummary
	if s.lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	total, students, err := s.reports.Disbursed(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load disbursement totals")
	}
	cycle, err := s.activeCycle(ctx)
	if err != nil {
		return nil, false, err
	}
	summary := &models.TransparencySummary{
		TotalDisbursed: total,
		StudentsHelped: students,
		ActiveCycle:    cycle,
		GeneratedAt:    s.now(),
	}
	s.store(ctx, key, summary)
	return summary, false, nil
}

func (s *ReportService) activeCycle(ctx context.Context) (*models.BursaryCycle, error) {
	if s.cycles == nil {
		return nil, nil
	}
	cycle, err := s.cycles.Active(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active cycle")
	}
	return cycle, nil
}

func (s *ReportService) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	return err == nil && hit
}

func (s *ReportService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("failed to cache report", zap.String("key", key), zap.Error(err))
	}
}
