package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

// PaymentRepository persists disbursement records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetByApplicationID returns the payment for an application, or sql.ErrNoRows.
func (r *PaymentRepository) GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Payment, error) {
	const query = `SELECT id, application_id, amount_awarded, payment_reference, provider, disbursed_by, paid_at FROM payments WHERE application_id = $1`
	var payment models.Payment
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &payment, query, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &payment, nil
}

// Create inserts a payment. A second payment for the same application yields ErrDuplicate.
func (r *PaymentRepository) Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (id, application_id, amount_awarded, payment_reference, provider, disbursed_by, paid_at) VALUES (:id, :application_id, :amount_awarded, :payment_reference, :provider, :disbursed_by, :paid_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, payment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// Recent returns the latest payments with beneficiary names.
func (r *PaymentRepository) Recent(ctx context.Context, limit int) ([]models.PaymentSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT p.id, p.application_id, p.amount_awarded, p.payment_reference, p.provider, p.disbursed_by, p.paid_at, u.full_name AS student_name, a.academic_year
FROM payments p
JOIN applications a ON a.id = p.application_id
JOIN users u ON u.id = a.student_id
ORDER BY p.paid_at DESC LIMIT $1`
	var items []models.PaymentSummary
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("list recent payments: %w", err)
	}
	return items, nil
}
