package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, actor authz.Actor, req dto.SubmitApplicationRequest) (*dto.SubmissionResult, error)
	Edit(ctx context.Context, actor authz.Actor, id string, req dto.EditApplicationRequest) (*dto.SubmissionResult, error)
	Get(ctx context.Context, actor authz.Actor, id string) (*dto.ApplicationView, error)
	ListMine(ctx context.Context, actor authz.Actor, page, pageSize int) ([]models.ApplicationDetail, *models.Pagination, error)
	List(ctx context.Context, actor authz.Actor, query dto.ApplicationQuery) ([]models.ApplicationDetail, *models.Pagination, error)
	CommitteeQueue(ctx context.Context, actor authz.Actor, year string) ([]models.ApplicationDetail, error)
}

// ApplicationHandler exposes the student and staff application endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Submit godoc
// @Summary Submit a bursary application
// @Description Creates the application, screens it and returns the verdict. A failed screening is reported as a rejected application, not an error.
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Edit godoc
// @Summary Edit a pending application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.EditApplicationRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id} [put]
func (h *ApplicationHandler) Edit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.EditApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	result, err := h.service.Edit(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Mine godoc
// @Summary List the caller's applications
// @Tags Applications
// @Produce json
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications/mine [get]
func (h *ApplicationHandler) Mine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.ListMine(c.Request.Context(), actor, queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param academicYear query string false "Academic year, e.g. 2025/2026"
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Name or email"
// @Param sortBy query string false "created_at, score, amount_requested or student_name"
// @Param sortOrder query string false "asc or desc"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	query := dto.ApplicationQuery{
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		Search:       strings.TrimSpace(c.Query("search")),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "pageSize", 20),
		SortBy:       c.Query("sortBy"),
		SortOrder:    c.Query("sortOrder"),
	}
	for _, raw := range strings.Split(c.Query("status"), ",") {
		status := models.ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
		if status == "" {
			continue
		}
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+string(status)))
			return
		}
		query.Status = append(query.Status, status)
	}
	items, pagination, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Queue godoc
// @Summary Committee review queue
// @Description Pending applications ordered by needs score, highest first.
// @Tags Applications
// @Produce json
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /applications/queue [get]
func (h *ApplicationHandler) Queue(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.service.CommitteeQueue(c.Request.Context(), actor, strings.TrimSpace(c.Query("academicYear")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
