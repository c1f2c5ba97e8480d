package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/service"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, actor authz.Actor, kind models.DocumentKind, upload service.DocumentUpload) (*dto.UploadDocumentResponse, error)
	Open(ctx context.Context, actor authz.Actor, token string) (*service.DocumentDownload, error)
}

// DocumentHandler handles scan uploads and signed downloads.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Upload a supporting document
// @Description Returns an opaque reference to pass in the application payload.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param kind formData string true "id_card, fee_structure, admission_letter or guardian_id"
// @Param file formData file true "PDF, JPEG or PNG scan"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	kind := models.DocumentKind(strings.TrimSpace(c.PostForm("kind")))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	res, err := h.service.Upload(c.Request.Context(), actor, kind, service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  src,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Download godoc
// @Summary Download a document through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/download/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	doc, err := h.service.Open(c.Request.Context(), actor, c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer doc.File.Close() //nolint:errcheck

	size := int64(-1)
	if info, err := doc.File.Stat(); err == nil {
		size = info.Size()
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, doc.ContentType, doc.File, nil)
}
