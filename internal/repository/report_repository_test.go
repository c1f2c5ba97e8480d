package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepositoryTotals(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE admin_comments LIKE 'AUTO-REJECTION%') AS auto_rejected")).
		WithArgs("2025/2026").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "recommended", "approved", "paid", "rejected", "auto_rejected", "average_score"}).
			AddRow(10, 3, 2, 4, 1, 1, 1, 61.5))

	totals, err := repo.Totals(context.Background(), "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, 10, totals.Total)
	assert.Equal(t, 4, totals.Approved)
	assert.Equal(t, 1, totals.AutoRejected)
	assert.InDelta(t, 61.5, totals.AverageScore, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryScoreDistributionFillsEmptyBuckets(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY label")).
		WillReturnRows(sqlmock.NewRows([]string{"label", "count"}).AddRow("41-60", 3).AddRow("81-100", 1))

	buckets, err := repo.ScoreDistribution(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, buckets, 5)
	assert.Equal(t, "0-20", buckets[0].Label)
	assert.Zero(t, buckets[0].Count)
	assert.Equal(t, 3, buckets[2].Count)
	assert.Equal(t, 81, buckets[4].Min)
	assert.Equal(t, 1, buckets[4].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryDisbursed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(DISTINCT a.student_id) AS students")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "students"}).AddRow(45000.0, 3))

	total, students, err := repo.Disbursed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45000.0, total)
	assert.Equal(t, 3, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}
