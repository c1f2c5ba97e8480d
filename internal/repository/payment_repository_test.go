package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/models"
)

func TestPaymentRepositoryCreateOncePerApplication(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payments").WillReturnError(&pq.Error{Code: "23505", Constraint: "payments_application_id_key"})

	first := &models.Payment{ApplicationID: "app-1", AmountAwarded: 15000, Reference: "MPESA0A1B2C3D", Provider: "mpesa"}
	require.NoError(t, repo.Create(context.Background(), nil, first))

	second := &models.Payment{ApplicationID: "app-1", AmountAwarded: 15000, Reference: "MPESAFFFFFFFF", Provider: "mpesa"}
	assert.ErrorIs(t, repo.Create(context.Background(), nil, second), ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryGetByApplicationID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE application_id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "amount_awarded", "payment_reference", "provider", "disbursed_by", "paid_at"}).
			AddRow("pay-1", "app-1", 15000.0, "MPESA0A1B2C3D", "mpesa", "adm-1", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE application_id = $1")).
		WithArgs("app-2").
		WillReturnError(sql.ErrNoRows)

	payment, err := repo.GetByApplicationID(context.Background(), nil, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "MPESA0A1B2C3D", payment.Reference)

	_, err = repo.GetByApplicationID(context.Background(), nil, "app-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryRecentDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY p.paid_at DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "amount_awarded", "payment_reference", "provider", "disbursed_by", "paid_at", "student_name", "academic_year"}).
			AddRow("pay-1", "app-1", 15000.0, "MPESA0A1B2C3D", "mpesa", nil, time.Now(), "Jane", "2025/2026"))

	items, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Jane", items[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
