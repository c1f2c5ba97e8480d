package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/export"
	"github.com/noah-isme/bursary-api/pkg/storage"
)

var exportStatuses = []models.ApplicationStatus{
	models.ApplicationStatusRecommended,
	models.ApplicationStatusApproved,
	models.ApplicationStatusPaid,
}

var exportHeaders = []string{"Student Name", "National ID", "School", "Admission No", "Amount Allocated", "Status", "Date Applied"}

type applicationLister interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	GetDetail(ctx context.Context, id string) (*models.ApplicationDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type letterRenderer interface {
	RenderLetter(letter export.Letter) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Signatory string
}

// ExportRenderers lets tests replace the file renderers.
type ExportRenderers struct {
	CSV    datasetRenderer
	XLSX   datasetRenderer
	PDF    datasetRenderer
	Letter letterRenderer
}

// ExportService renders application lists and award letters.
type ExportService struct {
	apps      applicationLister
	payments  paymentStore
	audit     auditRecorder
	storage   fileStorage
	signer    *storage.SignedURLSigner
	renderers ExportRenderers
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Zero renderers fall back to the pkg/export defaults.
func NewExportService(apps applicationLister, payments paymentStore, audit auditRecorder, files fileStorage, signer *storage.SignedURLSigner, renderers ExportRenderers, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Signatory == "" {
		cfg.Signatory = "Bursary Fund Administrator"
	}
	pdf := export.NewPDFExporter("Constituency Bursary Fund")
	if renderers.CSV == nil {
		renderers.CSV = export.NewCSVExporter()
	}
	if renderers.XLSX == nil {
		renderers.XLSX = export.NewExcelExporter()
	}
	if renderers.PDF == nil {
		renderers.PDF = pdf
	}
	if renderers.Letter == nil {
		renderers.Letter = pdf
	}
	return &ExportService{
		apps:      apps,
		payments:  payments,
		audit:     audit,
		storage:   files,
		signer:    signer,
		renderers: renderers,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExportApplications renders recommended, approved and paid applications, stores the file
// and returns a signed download URL.
func (s *ExportService) ExportApplications(ctx context.Context, actor authz.Actor, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if !actor.Can(authz.ActionReportExport, authz.Resource{Kind: "report"}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	renderer, ext, err := s.rendererFor(req.Format)
	if err != nil {
		return nil, err
	}

	rows, err := s.collect(ctx, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applications")
	}

	title := "Bursary Applications"
	if req.AcademicYear != "" {
		title += " " + req.AcademicYear
	}
	dataset := export.Dataset{Title: title, Headers: exportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student Name":     row.StudentName,
			"National ID":      deref(row.NationalID),
			"School":           deref(row.SchoolName),
			"Admission No":     deref(row.AdmissionNumber),
			"Amount Allocated": formatAmount(row.AmountRequested),
			"Status":           row.Status.Label(),
			"Date Applied":     row.CreatedAt.Format("2006-01-02"),
		})
	}

	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("applications_%s_%s.%s", sanitizeFilename(req.AcademicYear), s.now().Format("20060102_150405"), ext)
	relPath, err := s.storage.Save(exportID+"_"+filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	if err := s.audit.Create(ctx, nil, &models.AuditLog{
		UserID:   &actor.ID,
		Action:   models.AuditActionApplicationExport,
		Details:  fmt.Sprintf("Exported %d applications as %s", len(rows), strings.ToUpper(ext)),
		Resource: "export",
	}); err != nil {
		s.logger.Warn("failed to audit export", zap.Error(err))
	}

	return &dto.ExportResponse{
		Filename:  filename,
		URL:       fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token),
		Rows:      len(rows),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// OpenExport resolves a signed token to the stored file.
func (s *ExportService) OpenExport(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	name := relPath
	if idx := strings.Index(name, "_"); idx >= 0 {
		name = name[idx+1:]
	}
	return file, name, nil
}

// Cleanup removes exports older than ttl, or the configured TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// AwardLetter renders the PDF award letter for an approved or paid application.
func (s *ExportService) AwardLetter(ctx context.Context, actor authz.Actor, id string) ([]byte, string, error) {
	detail, err := s.apps.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.Can(authz.ActionAwardLetterDownload, authz.Resource{Kind: "application", OwnerID: detail.StudentID}) {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if detail.Status != models.ApplicationStatusApproved && detail.Status != models.ApplicationStatusPaid {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "Your application has not been approved yet.")
	}

	amount := detail.AmountRequested
	body := []string{
		fmt.Sprintf("We are pleased to inform you that your application for the %s academic year has been approved. You have been awarded KES %s.", detail.AcademicYear, formatAmount(amount)),
	}
	paid, err := s.payments.GetByApplicationID(ctx, nil, id)
	switch {
	case err == nil:
		body = append(body, fmt.Sprintf("The funds were disbursed on %s under payment reference %s. Please confirm receipt with your institution's bursar.", paid.PaidAt.Format("02 January 2006"), paid.Reference))
	case errors.Is(err, sql.ErrNoRows):
		body = append(body, "The funds will be disbursed to your registered mobile money account. You will be notified once the payment is made.")
	default:
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if detail.SchoolName != nil && *detail.SchoolName != "" {
		body = append(body, fmt.Sprintf("This award is tenable at %s and may only be applied towards school fees.", *detail.SchoolName))
	}

	payload, err := s.renderers.Letter.RenderLetter(export.Letter{
		Reference: "CBF/" + detail.AcademicYear + "/" + shortID(detail.ID),
		Recipient: detail.StudentName,
		Subject:   "Bursary Award " + detail.AcademicYear,
		Body:      body,
		Signatory: s.cfg.Signatory,
		Date:      s.now(),
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render award letter")
	}
	return payload, fmt.Sprintf("award_letter_%s.pdf", shortID(detail.ID)), nil
}

func (s *ExportService) rendererFor(format dto.ExportFormat) (datasetRenderer, string, error) {
	switch format {
	case dto.ExportFormatCSV, "":
		return s.renderers.CSV, "csv", nil
	case dto.ExportFormatXLSX:
		return s.renderers.XLSX, "xlsx", nil
	case dto.ExportFormatPDF:
		return s.renderers.PDF, "pdf", nil
	}
	return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
}

func (s *ExportService) collect(ctx context.Context, year string) ([]models.ApplicationDetail, error) {
	const pageSize = 500
	var out []models.ApplicationDetail
	for page := 1; ; page++ {
		items, total, err := s.apps.List(ctx, models.ApplicationFilter{
			AcademicYear: year,
			Statuses:     exportStatuses,
			Page:         page,
			PageSize:     pageSize,
			SortBy:       "student_name",
			SortOrder:    "asc",
		})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < pageSize || len(out) >= total {
			return out, nil
		}
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
