package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

// ReportRepository runs read-only aggregates over applications and payments.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ScoreBuckets are the dashboard histogram ranges.
var ScoreBuckets = []models.ScoreBucket{
	{Label: "0-20", Min: 0, Max: 20},
	{Label: "21-40", Min: 21, Max: 40},
	{Label: "41-60", Min: 41, Max: 60},
	{Label: "61-80", Min: 61, Max: 80},
	{Label: "81-100", Min: 81, Max: 100},
}

func yearClause(year string, column string) (string, []interface{}) {
	if year == "" {
		return "", nil
	}
	return fmt.Sprintf(" WHERE %s = $1", column), []interface{}{year}
}

// Totals returns headline counters. Approved counts both approved and paid applications.
func (r *ReportRepository) Totals(ctx context.Context, year string) (models.ApplicationTotals, error) {
	where, args := yearClause(year, "academic_year")
	query := `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE status = 'pending') AS pending,
COUNT(*) FILTER (WHERE status = 'recommended') AS recommended,
COUNT(*) FILTER (WHERE status IN ('approved', 'paid')) AS approved,
COUNT(*) FILTER (WHERE status = 'paid') AS paid,
COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
COUNT(*) FILTER (WHERE admin_comments LIKE 'AUTO-REJECTION%') AS auto_rejected,
COALESCE(AVG(score) FILTER (WHERE status <> 'rejected'), 0) AS average_score
FROM applications` + where
	var totals models.ApplicationTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return models.ApplicationTotals{}, fmt.Errorf("application totals: %w", err)
	}
	return totals, nil
}

// BudgetUsed sums awarded amounts.
func (r *ReportRepository) BudgetUsed(ctx context.Context, year string) (float64, error) {
	where, args := yearClause(year, "a.academic_year")
	query := `SELECT COALESCE(SUM(p.amount_awarded), 0) FROM payments p JOIN applications a ON a.id = p.application_id` + where
	var total float64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("sum budget used: %w", err)
	}
	return total, nil
}

// StatusCounts groups applications by status.
func (r *ReportRepository) StatusCounts(ctx context.Context, year string) ([]models.StatusCount, error) {
	where, args := yearClause(year, "academic_year")
	query := `SELECT status, COUNT(*) AS count FROM applications` + where + ` GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	return counts, nil
}

// ScoreDistribution counts screened applications per ScoreBuckets range.
func (r *ReportRepository) ScoreDistribution(ctx context.Context, year string) ([]models.ScoreBucket, error) {
	where, args := yearClause(year, "academic_year")
	query := `SELECT CASE
WHEN score <= 20 THEN '0-20'
WHEN score <= 40 THEN '21-40'
WHEN score <= 60 THEN '41-60'
WHEN score <= 80 THEN '61-80'
ELSE '81-100' END AS label, COUNT(*) AS count
FROM applications` + where + ` GROUP BY label`
	var rows []models.ScoreBucket
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("score distribution: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Count
	}
	out := make([]models.ScoreBucket, len(ScoreBuckets))
	for i, bucket := range ScoreBuckets {
		bucket.Count = counts[bucket.Label]
		out[i] = bucket
	}
	return out, nil
}

// FinancialHistory returns paid totals per academic year, newest first.
func (r *ReportRepository) FinancialHistory(ctx context.Context) ([]models.FinancialYear, error) {
	const query = `SELECT a.academic_year, COUNT(p.id) AS paid_count, COALESCE(SUM(p.amount_awarded), 0) AS total_paid
FROM payments p JOIN applications a ON a.id = p.application_id
GROUP BY a.academic_year ORDER BY a.academic_year DESC`
	var years []models.FinancialYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("financial history: %w", err)
	}
	return years, nil
}

// Disbursed returns the overall amount paid and number of distinct beneficiaries.
func (r *ReportRepository) Disbursed(ctx context.Context) (float64, int, error) {
	const query = `SELECT COALESCE(SUM(p.amount_awarded), 0) AS total, COUNT(DISTINCT a.student_id) AS students
FROM payments p JOIN applications a ON a.id = p.application_id`
	var row struct {
		Total    float64 `db:"total"`
		Students int     `db:"students"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, fmt.Errorf("sum disbursed: %w", err)
	}
	return row.Total, row.Students, nil
}
