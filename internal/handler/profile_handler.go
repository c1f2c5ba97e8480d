package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type profileService interface {
	Get(ctx context.Context, actor authz.Actor, userID string) (*dto.ProfileResponse, error)
	Upsert(ctx context.Context, actor authz.Actor, userID string, req dto.UpsertProfileRequest) (*dto.ProfileResponse, error)
}

// ProfileHandler exposes applicant profile endpoints.
type ProfileHandler struct {
	service profileService
}

// NewProfileHandler constructs the handler.
func NewProfileHandler(service profileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Get godoc
// @Summary Get an applicant profile
// @Description Without an id the caller's own profile is returned.
// @Tags Profiles
// @Produce json
// @Param id path string false "User ID"
// @Success 200 {object} response.Envelope
// @Router /profile [get]
// @Router /users/{id}/profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	res, err := h.service.Get(c.Request.Context(), actor, targetUser(c, actor))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Upsert godoc
// @Summary Create or update an applicant profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param id path string false "User ID"
// @Param payload body dto.UpsertProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /profile [put]
// @Router /users/{id}/profile [put]
func (h *ProfileHandler) Upsert(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
		return
	}
	res, err := h.service.Upsert(c.Request.Context(), actor, targetUser(c, actor), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func targetUser(c *gin.Context, actor authz.Actor) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return actor.ID
}
