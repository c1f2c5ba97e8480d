package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type reviewService interface {
	Recommend(ctx context.Context, actor authz.Actor, id string, req dto.RecommendRequest) (*models.Application, error)
	Reject(ctx context.Context, actor authz.Actor, id string, req dto.RejectRequest) (*models.Application, error)
}

type disbursementService interface {
	Disburse(ctx context.Context, actor authz.Actor, id string) (*models.Payment, error)
	BulkDisburse(ctx context.Context, actor authz.Actor, req dto.BulkDisburseRequest) (*dto.BulkDisbursementResult, error)
}

// ReviewHandler exposes committee and administrative decisions.
type ReviewHandler struct {
	reviews       reviewService
	disbursements disbursementService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(reviews reviewService, disbursements disbursementService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, disbursements: disbursements}
}

// Recommend godoc
// @Summary Recommend a pending application
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RecommendRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/recommend [post]
func (h *ReviewHandler) Recommend(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	app, err := h.reviews.Recommend(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Reject godoc
// @Summary Reject a pending or recommended application
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/reject [post]
func (h *ReviewHandler) Reject(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rejection payload"))
		return
	}
	app, err := h.reviews.Reject(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Disburse godoc
// @Summary Approve and pay an application
// @Description Approves a recommended application and pays it through the mobile money gateway.
// @Tags Disbursement
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/disburse [post]
func (h *ReviewHandler) Disburse(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	payment, err := h.disbursements.Disburse(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// BulkDisburse godoc
// @Summary Pay several applications
// @Description Each application is paid independently. The response lists per-item outcomes.
// @Tags Disbursement
// @Accept json
// @Produce json
// @Param payload body dto.BulkDisburseRequest true "Application IDs"
// @Success 200 {object} response.Envelope
// @Router /applications/bulk-disburse [post]
func (h *ReviewHandler) BulkDisburse(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.BulkDisburseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}
	result, err := h.disbursements.BulkDisburse(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
