package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type reportService interface {
	Dashboard(ctx context.Context, actor authz.Actor, year string) (*models.DashboardStats, bool, error)
	FinancialHistory(ctx context.Context, actor authz.Actor) ([]models.FinancialYear, error)
	Transparency(ctx context.Context) (*models.TransparencySummary, bool, error)
}

type exportService interface {
	ExportApplications(ctx context.Context, actor authz.Actor, req dto.ExportRequest) (*dto.ExportResponse, error)
	OpenExport(token string) (*os.File, string, error)
	AwardLetter(ctx context.Context, actor authz.Actor, id string) ([]byte, string, error)
}

// ReportHandler exposes dashboards, exports and the public transparency summary.
type ReportHandler struct {
	reports reportService
	exports exportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService, exports exportService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Dashboard godoc
// @Summary Staff dashboard
// @Tags Reports
// @Produce json
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.reports.Dashboard(c.Request.Context(), actor, strings.TrimSpace(c.Query("academicYear")))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, cacheHit, start)
}

// FinancialHistory godoc
// @Summary Disbursements per academic year
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/financial-history [get]
func (h *ReportHandler) FinancialHistory(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	history, err := h.reports.FinancialHistory(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Transparency godoc
// @Summary Public disbursement summary
// @Tags Public
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /public/transparency [get]
func (h *ReportHandler) Transparency(c *gin.Context) {
	start := time.Now()
	summary, cacheHit, err := h.reports.Transparency(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, cacheHit, start)
}

// Export godoc
// @Summary Export shortlisted applications
// @Description Renders recommended, approved and paid applications and returns a signed download URL.
// @Tags Reports
// @Produce json
// @Param format query string true "csv, xlsx or pdf"
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /reports/applications/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	format := dto.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv"))))
	res, err := h.exports.ExportApplications(c.Request.Context(), actor, dto.ExportRequest{
		Format:       format,
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// DownloadExport godoc
// @Summary Download a generated export
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ReportHandler) DownloadExport(c *gin.Context) {
	file, name, err := h.exports.OpenExport(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	size := int64(-1)
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, exportContentType(name), file, nil)
}

// AwardLetter godoc
// @Summary Download the award letter
// @Tags Applications
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /applications/{id}/award-letter [get]
func (h *ReportHandler) AwardLetter(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	payload, filename, err := h.exports.AwardLetter(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", payload)
}

func respondCached(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}

func exportContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}
