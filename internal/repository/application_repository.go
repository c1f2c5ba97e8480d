package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

const applicationColumns = `id, student_id, academic_year, amount_requested, status, score, committee_comments, admin_comments, created_at, updated_at`

const applicationDetailSelect = `SELECT a.id, a.student_id, a.academic_year, a.amount_requested, a.status, a.score, a.committee_comments, a.admin_comments, a.created_at, a.updated_at,
u.full_name AS student_name, u.email AS student_email, u.national_id, p.school_name, p.admission_number
FROM applications a
JOIN users u ON u.id = a.student_id
LEFT JOIN applicant_profiles p ON p.user_id = a.student_id`

// StatusUpdate carries the optional columns written alongside a status change.
type StatusUpdate struct {
	Score             *int
	CommitteeComments *string
	AdminComments     *string
}

// ApplicationRepository persists applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a pending application. A second row for the same student and year yields ErrDuplicate.
func (r *ApplicationRepository) Create(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusPending
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	const query = `INSERT INTO applications (id, student_id, academic_year, amount_requested, status, score, committee_comments, admin_comments, created_at, updated_at) VALUES (:id, :student_id, :academic_year, :amount_requested, :status, :score, :committee_comments, :admin_comments, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, app); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID loads an application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// LockByID loads an application and holds a row lock until the transaction ends.
func (r *ApplicationRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 FOR UPDATE`
	var app models.Application
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}
	return &app, nil
}

// FindByStudentAndYear returns the student's application for a cycle.
func (r *ApplicationRepository) FindByStudentAndYear(ctx context.Context, studentID, year string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE student_id = $1 AND academic_year = $2 LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, studentID, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find application by student and year: %w", err)
	}
	return &app, nil
}

// GetDetail loads an application with applicant columns.
func (r *ApplicationRepository) GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	query := applicationDetailSelect + ` WHERE a.id = $1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get application detail: %w", err)
	}
	return &detail, nil
}

// List returns applications matching the filter with the total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if filter.AcademicYear != "" {
		args = append(args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("a.academic_year = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, "a.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(u.email) LIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := map[string]string{
		"created_at":       "a.created_at",
		"score":            "a.score",
		"amount_requested": "a.amount_requested",
		"student_name":     "u.full_name",
	}[filter.SortBy]
	if sortBy == "" {
		sortBy = "a.created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	_, size, offset := models.NormalisePage(filter.Page, filter.PageSize, 500)
	listQuery := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", applicationDetailSelect, where, sortBy, sortOrder, size, offset)

	var items []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM applications a JOIN users u ON u.id = a.student_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return items, total, nil
}

// CommitteeQueue returns pending applications, neediest first.
func (r *ApplicationRepository) CommitteeQueue(ctx context.Context, year string) ([]models.ApplicationDetail, error) {
	query := applicationDetailSelect + ` WHERE a.status = $1`
	args := []interface{}{models.ApplicationStatusPending}
	if year != "" {
		query += ` AND a.academic_year = $2`
		args = append(args, year)
	}
	query += ` ORDER BY a.score DESC, a.created_at DESC`

	var items []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list committee queue: %w", err)
	}
	return items, nil
}

// UpdateRequest changes the requested amount while the application is still pending.
func (r *ApplicationRepository) UpdateRequest(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) (*models.Application, error) {
	query := `UPDATE applications SET amount_requested = $1, updated_at = $2 WHERE id = $3 AND status = $4 RETURNING ` + applicationColumns
	var app models.Application
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &app, query, amount, time.Now().UTC(), id, models.ApplicationStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update application request: %w", err)
	}
	return &app, nil
}

// Transition moves the application to `to` only if its current status is one of `from`.
// sql.ErrNoRows means the row is missing or another request changed it first.
func (r *ApplicationRepository) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ApplicationStatus, to models.ApplicationStatus, update StatusUpdate) (*models.Application, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("transition to %s: no source status", to)
	}
	sets := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{to, time.Now().UTC()}
	if update.Score != nil {
		args = append(args, *update.Score)
		sets = append(sets, fmt.Sprintf("score = $%d", len(args)))
	}
	if update.CommitteeComments != nil {
		args = append(args, *update.CommitteeComments)
		sets = append(sets, fmt.Sprintf("committee_comments = $%d", len(args)))
	}
	if update.AdminComments != nil {
		args = append(args, *update.AdminComments)
		sets = append(sets, fmt.Sprintf("admin_comments = $%d", len(args)))
	}

	args = append(args, id)
	idPos := len(args)
	placeholders := make([]string, 0, len(from))
	for _, status := range from {
		args = append(args, status)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = $%d AND status IN (%s) RETURNING %s",
		strings.Join(sets, ", "), idPos, strings.Join(placeholders, ", "), applicationColumns)

	var app models.Application
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &app, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("transition application to %s: %w", to, err)
	}
	return &app, nil
}

// SetScore records the screening score on a pending application.
func (r *ApplicationRepository) SetScore(ctx context.Context, exec sqlx.ExtContext, id string, score int) error {
	const query = `UPDATE applications SET score = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := pick(r.db, exec).ExecContext(ctx, query, score, time.Now().UTC(), id, models.ApplicationStatusPending)
	if err != nil {
		return fmt.Errorf("set application score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("application score rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
