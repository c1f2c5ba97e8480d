package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/service"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

var studentClaims = &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}

type fakeApplications struct {
	actor     authz.Actor
	submitted dto.SubmitApplicationRequest
	query     dto.ApplicationQuery
	result    *dto.SubmissionResult
	err       error
}

func (f *fakeApplications) Submit(ctx context.Context, actor authz.Actor, req dto.SubmitApplicationRequest) (*dto.SubmissionResult, error) {
	f.actor, f.submitted = actor, req
	return f.result, f.err
}

func (f *fakeApplications) Edit(ctx context.Context, actor authz.Actor, id string, req dto.EditApplicationRequest) (*dto.SubmissionResult, error) {
	return f.result, f.err
}

func (f *fakeApplications) Get(ctx context.Context, actor authz.Actor, id string) (*dto.ApplicationView, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
}

func (f *fakeApplications) ListMine(ctx context.Context, actor authz.Actor, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error) {
	return nil, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func (f *fakeApplications) List(ctx context.Context, actor authz.Actor, query dto.ApplicationQuery) ([]models.ApplicationDetail, *models.Pagination, error) {
	f.query = query
	return []models.ApplicationDetail{}, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: 0}, nil
}

func (f *fakeApplications) CommitteeQueue(ctx context.Context, actor authz.Actor, year string) ([]models.ApplicationDetail, error) {
	return nil, nil
}

func TestApplicationHandlerSubmitRequiresClaims(t *testing.T) {
	h := NewApplicationHandler(&fakeApplications{})
	c, rec := newContext(http.MethodPost, "/applications", []byte(`{}`), nil)
	h.Submit(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplicationHandlerSubmitCreated(t *testing.T) {
	fake := &fakeApplications{result: &dto.SubmissionResult{Application: &models.Application{ID: "a1", Status: models.ApplicationStatusPending}}}
	h := NewApplicationHandler(fake)
	body := []byte(`{"academicYear":"2025/2026","amountRequested":15000,"documents":{"idCard":"documents/student-1/a.pdf"}}`)
	c, rec := newContext(http.MethodPost, "/applications", body, studentClaims)

	h.Submit(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "student-1", fake.actor.ID)
	assert.Equal(t, "2025/2026", fake.submitted.AcademicYear)
	assert.Equal(t, "documents/student-1/a.pdf", fake.submitted.Documents.IDCard)
}

func TestApplicationHandlerSubmitMapsDuplicate(t *testing.T) {
	fake := &fakeApplications{err: appErrors.Clone(appErrors.ErrDuplicateApplication, "You have already applied for the 2025/2026 academic year.")}
	h := NewApplicationHandler(fake)
	c, rec := newContext(http.MethodPost, "/applications", []byte(`{"academicYear":"2025/2026","amountRequested":15000}`), studentClaims)

	h.Submit(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrDuplicateApplication.Code, env.Error.Code)
}

func TestApplicationHandlerListParsesFilters(t *testing.T) {
	fake := &fakeApplications{}
	h := NewApplicationHandler(fake)
	c, rec := newContext(http.MethodGet, "/applications?status=pending,Recommended&academicYear=2025/2026&page=2&pageSize=10", nil, &models.JWTClaims{UserID: "c1", Role: models.RoleCommittee})

	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusRecommended}, fake.query.Status)
	assert.Equal(t, 2, fake.query.Page)
	assert.Equal(t, 10, decode(t, rec).Pagination.PageSize)

	c, rec = newContext(http.MethodGet, "/applications?status=archived", nil, &models.JWTClaims{UserID: "c1", Role: models.RoleCommittee})
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeReview struct {
	disburseErr error
}

func (f *fakeReview) Recommend(ctx context.Context, actor authz.Actor, id string, req dto.RecommendRequest) (*models.Application, error) {
	return &models.Application{ID: id, Status: models.ApplicationStatusRecommended, Score: req.Score}, nil
}

func (f *fakeReview) Reject(ctx context.Context, actor authz.Actor, id string, req dto.RejectRequest) (*models.Application, error) {
	return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "Application is paid and cannot move to rejected.")
}

func (f *fakeReview) Disburse(ctx context.Context, actor authz.Actor, id string) (*models.Payment, error) {
	if f.disburseErr != nil {
		return nil, f.disburseErr
	}
	return &models.Payment{ApplicationID: id, Reference: "MPESA0000ABCD"}, nil
}

func (f *fakeReview) BulkDisburse(ctx context.Context, actor authz.Actor, req dto.BulkDisburseRequest) (*dto.BulkDisbursementResult, error) {
	return &dto.BulkDisbursementResult{Succeeded: len(req.ApplicationIDs)}, nil
}

func TestReviewHandlerOutcomes(t *testing.T) {
	fake := &fakeReview{}
	h := NewReviewHandler(fake, fake)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	c, rec := newContext(http.MethodPost, "/applications/a1/recommend", []byte(`{"score":80,"comments":"needy"}`), admin)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.Recommend(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(http.MethodPost, "/applications/a1/reject", []byte(`{"reason":"late"}`), admin)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.Reject(c)
	assert.Equal(t, http.StatusConflict, rec.Code)

	fake.disburseErr = appErrors.Clone(appErrors.ErrPaymentFailed, "Student does not have a registered phone number for M-Pesa.")
	c, rec = newContext(http.MethodPost, "/applications/a1/disburse", nil, admin)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.Disburse(c)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Student does not have a registered phone number for M-Pesa.", decode(t, rec).Error.Message)

	c, rec = newContext(http.MethodPost, "/applications/bulk-disburse", []byte(`{"applicationIds":["a1","a2"]}`), admin)
	h.BulkDisburse(c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeReports struct {
	hit bool
}

func (f *fakeReports) Dashboard(ctx context.Context, actor authz.Actor, year string) (*models.DashboardStats, bool, error) {
	return &models.DashboardStats{ApprovalRate: 50}, f.hit, nil
}

func (f *fakeReports) FinancialHistory(ctx context.Context, actor authz.Actor) ([]models.FinancialYear, error) {
	return nil, nil
}

func (f *fakeReports) Transparency(ctx context.Context) (*models.TransparencySummary, bool, error) {
	return &models.TransparencySummary{TotalDisbursed: 1000, StudentsHelped: 1}, f.hit, nil
}

type fakeExports struct {
	path string
}

func (f *fakeExports) ExportApplications(ctx context.Context, actor authz.Actor, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if req.Format == "docx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &dto.ExportResponse{Filename: "applications.csv", URL: "/api/v1/exports/token"}, nil
}

func (f *fakeExports) OpenExport(token string) (*os.File, string, error) {
	if token != "good" {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	file, err := os.Open(f.path)
	return file, "applications.csv", err
}

func (f *fakeExports) AwardLetter(ctx context.Context, actor authz.Actor, id string) ([]byte, string, error) {
	return []byte("%PDF"), "award_letter_A1.pdf", nil
}

func TestReportHandlerTransparencyReportsCacheHit(t *testing.T) {
	h := NewReportHandler(&fakeReports{hit: true}, &fakeExports{})
	c, rec := newContext(http.MethodGet, "/public/transparency", nil, nil)

	h.Transparency(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec).Meta["cache_hit"])
}

func TestReportHandlerExportAndDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student Name\nJane\n"), 0o644))
	h := NewReportHandler(&fakeReports{}, &fakeExports{path: path})
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	c, rec := newContext(http.MethodGet, "/reports/applications/export?format=DOCX", nil, admin)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newContext(http.MethodGet, "/exports/good", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	h.DownloadExport(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "applications.csv")
	assert.Equal(t, "Student Name\nJane\n", rec.Body.String())

	c, rec = newContext(http.MethodGet, "/exports/bad", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	h.DownloadExport(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newContext(http.MethodGet, "/applications/a1/award-letter", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.AwardLetter(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

type fakeDocuments struct {
	kind models.DocumentKind
	size int64
}

func (f *fakeDocuments) Upload(ctx context.Context, actor authz.Actor, kind models.DocumentKind, upload service.DocumentUpload) (*dto.UploadDocumentResponse, error) {
	f.kind, f.size = kind, upload.Size
	return &dto.UploadDocumentResponse{Reference: "documents/" + actor.ID + "/x.pdf", Kind: kind}, nil
}

func (f *fakeDocuments) Open(ctx context.Context, actor authz.Actor, token string) (*service.DocumentDownload, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
}

func TestDocumentHandlerUploadMultipart(t *testing.T) {
	fake := &fakeDocuments{}
	h := NewDocumentHandler(fake)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("kind", "fee_structure"))
	part, err := writer.CreateFormFile("file", "fees.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 fee structure"))
	require.NoError(t, writer.Close())

	c, rec := newContext(http.MethodPost, "/documents", body.Bytes(), studentClaims)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	h.Upload(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.DocumentKindFeeStructure, fake.kind)
	assert.Equal(t, int64(len("%PDF-1.4 fee structure")), fake.size)

	c, rec = newContext(http.MethodPost, "/documents", nil, studentClaims)
	h.Upload(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
