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

type cycleService interface {
	List(ctx context.Context, actor authz.Actor) ([]models.BursaryCycle, error)
	Active(ctx context.Context) (*models.BursaryCycle, error)
	Create(ctx context.Context, actor authz.Actor, req dto.CreateCycleRequest) (*models.BursaryCycle, error)
	Activate(ctx context.Context, actor authz.Actor, id string) (*models.BursaryCycle, error)
}

// CycleHandler manages bursary cycles.
type CycleHandler struct {
	service cycleService
}

// NewCycleHandler constructs the handler.
func NewCycleHandler(service cycleService) *CycleHandler {
	return &CycleHandler{service: service}
}

// List godoc
// @Summary List bursary cycles
// @Tags Cycles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cycles [get]
func (h *CycleHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cycles, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cycles, nil)
}

// Active godoc
// @Summary Get the active cycle
// @Tags Cycles
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /cycles/active [get]
func (h *CycleHandler) Active(c *gin.Context) {
	cycle, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cycle, nil)
}

// Create godoc
// @Summary Create a bursary cycle
// @Tags Cycles
// @Accept json
// @Produce json
// @Param payload body dto.CreateCycleRequest true "Cycle"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /cycles [post]
func (h *CycleHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cycle payload"))
		return
	}
	cycle, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cycle)
}

// Activate godoc
// @Summary Activate a cycle
// @Tags Cycles
// @Produce json
// @Param id path string true "Cycle ID"
// @Success 200 {object} response.Envelope
// @Router /cycles/{id}/activate [post]
func (h *CycleHandler) Activate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cycle, err := h.service.Activate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cycle, nil)
}
