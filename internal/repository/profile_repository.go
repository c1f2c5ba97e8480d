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

const profileColumns = `id, user_id, county, constituency, ward, location, sub_location, school_name, admission_number, guardian_name, guardian_phone, guardian_id_number, guardian_income, household_size, guardian_id_document, created_at, updated_at`

// ProfileRepository persists applicant profiles.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID loads the profile owned by a user.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.ApplicantProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM applicant_profiles WHERE user_id = $1`
	var profile models.ApplicantProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get applicant profile: %w", err)
	}
	return &profile, nil
}

// Upsert creates the profile on first save and overwrites it afterwards.
func (r *ProfileRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, profile *models.ApplicantProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	query := `INSERT INTO applicant_profiles (` + profileColumns + `)
VALUES (:id, :user_id, :county, :constituency, :ward, :location, :sub_location, :school_name, :admission_number, :guardian_name, :guardian_phone, :guardian_id_number, :guardian_income, :household_size, :guardian_id_document, :created_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET
county = EXCLUDED.county, constituency = EXCLUDED.constituency, ward = EXCLUDED.ward, location = EXCLUDED.location, sub_location = EXCLUDED.sub_location,
school_name = EXCLUDED.school_name, admission_number = EXCLUDED.admission_number,
guardian_name = EXCLUDED.guardian_name, guardian_phone = EXCLUDED.guardian_phone, guardian_id_number = EXCLUDED.guardian_id_number,
guardian_income = EXCLUDED.guardian_income, household_size = EXCLUDED.household_size, guardian_id_document = EXCLUDED.guardian_id_document,
updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, profile); err != nil {
		return fmt.Errorf("upsert applicant profile: %w", err)
	}
	return nil
}
