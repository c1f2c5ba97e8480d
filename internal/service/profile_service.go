package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type profileUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateContact(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
}

type profileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.ApplicantProfile, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, profile *models.ApplicantProfile) error
}

// ProfileService manages applicant profiles.
type ProfileService struct {
	users     profileUserStore
	profiles  profileStore
	audit     auditRecorder
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs the service.
func NewProfileService(users profileUserStore, profiles profileStore, audit auditRecorder, tx txProvider, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if validate == nil {
		validate = dto.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{users: users, profiles: profiles, audit: audit, tx: tx, validator: validate, logger: logger}
}

// Get returns the profile of userID with its completion percentage.
func (s *ProfileService) Get(ctx context.Context, actor authz.Actor, userID string) (*dto.ProfileResponse, error) {
	if !actor.Can(authz.ActionProfileManage, authz.Resource{Kind: "profile", OwnerID: userID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot access this profile")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profileResponse(user, profile), nil
}

// Upsert creates the profile on first save and overwrites it afterwards. Phone and national id
// are stored on the account in the same transaction.
func (s *ProfileService) Upsert(ctx context.Context, actor authz.Actor, userID string, req dto.UpsertProfileRequest) (res *dto.ProfileResponse, err error) {
	if !actor.Can(authz.ActionProfileManage, authz.Resource{Kind: "profile", OwnerID: userID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot modify this profile")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	profile := &models.ApplicantProfile{UserID: userID}
	if existing != nil {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	}
	profile.County = strings.TrimSpace(req.County)
	profile.Constituency = strings.TrimSpace(req.Constituency)
	profile.Ward = strings.TrimSpace(req.Ward)
	profile.Location = strings.TrimSpace(req.Location)
	profile.SubLocation = strings.TrimSpace(req.SubLocation)
	profile.SchoolName = strings.TrimSpace(req.SchoolName)
	profile.AdmissionNumber = strings.TrimSpace(req.AdmissionNumber)
	profile.GuardianName = strings.TrimSpace(req.GuardianName)
	profile.GuardianPhone = strings.TrimSpace(req.GuardianPhone)
	profile.GuardianIDNumber = strings.TrimSpace(req.GuardianIDNumber)
	profile.GuardianIncome = req.GuardianIncome
	profile.HouseholdSize = req.HouseholdSize
	profile.GuardianIDDocument = strings.TrimSpace(req.GuardianIDDocument)
	if profile.GuardianIDDocument != "" && !OwnsDocument(userID, profile.GuardianIDDocument) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document reference does not belong to the applicant")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	if err = s.profiles.Upsert(ctx, tx, profile); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save profile")
		return nil, err
	}

	phone, nationalID := optional(req.Phone), optional(req.NationalID)
	if phone != nil || nationalID != nil {
		contact := *user
		if phone != nil {
			contact.Phone = phone
		}
		if nationalID != nil {
			contact.NationalID = nationalID
		}
		if err = s.users.UpdateContact(ctx, tx, &contact); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update contact details")
			return nil, err
		}
		user = &contact
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit profile")
		return nil, err
	}

	if err := s.audit.Create(ctx, nil, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionProfileUpdate,
		Details:    "Profile updated for " + user.FullName,
		Resource:   "profile",
		ResourceID: &userID,
	}); err != nil {
		s.logger.Warn("failed to audit profile update", zap.String("user_id", userID), zap.Error(err))
	}
	return profileResponse(user, profile), nil
}

func (s *ProfileService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func profileResponse(user *models.User, profile *models.ApplicantProfile) *dto.ProfileResponse {
	return &dto.ProfileResponse{
		User:       userInfo(user),
		Phone:      user.PhoneNumber(),
		NationalID: deref(user.NationalID),
		Profile:    profile,
		Completion: ProfileCompletion(user, profile),
	}
}

// ProfileCompletion returns the share of filled account and profile fields as a whole percentage.
// Staff accounts are always complete.
func ProfileCompletion(user *models.User, profile *models.ApplicantProfile) int {
	if user == nil {
		return 0
	}
	if user.Role != models.RoleStudent {
		return 100
	}
	fields := []string{user.FullName, user.Email, user.PhoneNumber(), deref(user.NationalID)}
	const profileFields = 11
	total := len(fields) + profileFields
	if profile != nil {
		fields = append(fields,
			profile.SchoolName, profile.AdmissionNumber, profile.County,
			profile.Constituency, profile.Ward, profile.Location,
			profile.SubLocation, profile.GuardianName, profile.GuardianPhone,
			profile.GuardianIDNumber, profile.GuardianIDDocument,
		)
	}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return filled * 100 / total
}
