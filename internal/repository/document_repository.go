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

// DocumentRepository persists per-application document bundles.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts the bundle for an application.
func (r *DocumentRepository) Create(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error {
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}
	if bundle.UploadedAt.IsZero() {
		bundle.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_bundles (id, application_id, id_card, fee_structure, admission_letter, uploaded_at) VALUES (:id, :application_id, :id_card, :fee_structure, :admission_letter, :uploaded_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, bundle); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create document bundle: %w", err)
	}
	return nil
}

// GetByApplicationID loads the bundle attached to an application.
func (r *DocumentRepository) GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.DocumentBundle, error) {
	const query = `SELECT id, application_id, id_card, fee_structure, admission_letter, uploaded_at FROM document_bundles WHERE application_id = $1`
	var bundle models.DocumentBundle
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &bundle, query, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get document bundle: %w", err)
	}
	return &bundle, nil
}

// LatestForStudent returns the student's most recent bundle from another application.
func (r *DocumentRepository) LatestForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, excludeApplicationID string) (*models.DocumentBundle, error) {
	const query = `SELECT d.id, d.application_id, d.id_card, d.fee_structure, d.admission_letter, d.uploaded_at
FROM document_bundles d JOIN applications a ON a.id = d.application_id
WHERE a.student_id = $1 AND a.id <> $2
ORDER BY a.created_at DESC LIMIT 1`
	var bundle models.DocumentBundle
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &bundle, query, studentID, excludeApplicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find latest document bundle: %w", err)
	}
	return &bundle, nil
}

// Update replaces the stored references.
func (r *DocumentRepository) Update(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error {
	bundle.UploadedAt = time.Now().UTC()
	const query = `UPDATE document_bundles SET id_card = :id_card, fee_structure = :fee_structure, admission_letter = :admission_letter, uploaded_at = :uploaded_at WHERE application_id = :application_id`
	res, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, bundle)
	if err != nil {
		return fmt.Errorf("update document bundle: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
