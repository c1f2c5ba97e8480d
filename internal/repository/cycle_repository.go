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

// CycleRepository persists bursary cycles.
type CycleRepository struct {
	db *sqlx.DB
}

// NewCycleRepository constructs the repository.
func NewCycleRepository(db *sqlx.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// List returns all cycles, most recent year first.
func (r *CycleRepository) List(ctx context.Context) ([]models.BursaryCycle, error) {
	const query = `SELECT id, year, planned_budget, is_active, created_at FROM bursary_cycles ORDER BY year DESC`
	var cycles []models.BursaryCycle
	if err := r.db.SelectContext(ctx, &cycles, query); err != nil {
		return nil, fmt.Errorf("list bursary cycles: %w", err)
	}
	return cycles, nil
}

// Active returns the active cycle, or sql.ErrNoRows.
func (r *CycleRepository) Active(ctx context.Context) (*models.BursaryCycle, error) {
	const query = `SELECT id, year, planned_budget, is_active, created_at FROM bursary_cycles WHERE is_active = TRUE LIMIT 1`
	var cycle models.BursaryCycle
	if err := r.db.GetContext(ctx, &cycle, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get active bursary cycle: %w", err)
	}
	return &cycle, nil
}

// Create inserts an inactive cycle. A duplicate year yields ErrDuplicate.
func (r *CycleRepository) Create(ctx context.Context, cycle *models.BursaryCycle) error {
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	if cycle.CreatedAt.IsZero() {
		cycle.CreatedAt = time.Now().UTC()
	}
	cycle.IsActive = false
	const query = `INSERT INTO bursary_cycles (id, year, planned_budget, is_active, created_at) VALUES (:id, :year, :planned_budget, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cycle); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create bursary cycle: %w", err)
	}
	return nil
}

// Activate deactivates every other cycle and activates id. Run it inside a transaction.
func (r *CycleRepository) Activate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BursaryCycle, error) {
	target := pick(r.db, exec)
	if _, err := target.ExecContext(ctx, `UPDATE bursary_cycles SET is_active = FALSE WHERE is_active = TRUE AND id <> $1`, id); err != nil {
		return nil, fmt.Errorf("deactivate bursary cycles: %w", err)
	}
	const query = `UPDATE bursary_cycles SET is_active = TRUE WHERE id = $1 RETURNING id, year, planned_budget, is_active, created_at`
	var cycle models.BursaryCycle
	if err := sqlx.GetContext(ctx, target, &cycle, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("activate bursary cycle: %w", err)
	}
	return &cycle, nil
}
