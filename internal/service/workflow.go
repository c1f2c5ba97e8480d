package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditRecorder interface {
	Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

// EventDispatcher consumes committed lifecycle events.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events ...lifecycle.Event)
}

type applicationStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	FindByStudentAndYear(ctx context.Context, studentID, year string) (*models.Application, error)
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	CommitteeQueue(ctx context.Context, year string) ([]models.ApplicationDetail, error)
	UpdateRequest(ctx context.Context, exec sqlx.ExtContext, id string, amount float64) (*models.Application, error)
	Transition(ctx context.Context, exec sqlx.ExtContext, id string, from []models.ApplicationStatus, to models.ApplicationStatus, update repository.StatusUpdate) (*models.Application, error)
	SetScore(ctx context.Context, exec sqlx.ExtContext, id string, score int) error
}

type documentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error
	GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.DocumentBundle, error)
	LatestForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, excludeApplicationID string) (*models.DocumentBundle, error)
	Update(ctx context.Context, exec sqlx.ExtContext, bundle *models.DocumentBundle) error
}

type paymentStore interface {
	GetByApplicationID(ctx context.Context, exec sqlx.ExtContext, applicationID string) (*models.Payment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type profileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.ApplicantProfile, error)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, ...lifecycle.Event) {}

func applicationResource(id string) *string {
	return &id
}

func strPtr(v string) *string {
	return &v
}

func rollback(tx *sqlx.Tx, logger *zap.Logger) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logger.Warn("transaction rollback failed", zap.Error(err))
	}
}
