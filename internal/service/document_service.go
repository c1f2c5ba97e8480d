package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/authz"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/storage"
)

const documentRoot = "documents"

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader, maxBytes int64) (string, int64, error)
	Open(filename string) (*os.File, error)
}

type documentSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (subject, relPath string, expiresAt time.Time, err error)
}

// DocumentUpload carries one multipart file.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// DocumentDownload is an opened stored document.
type DocumentDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// DocumentServiceConfig holds upload limits and link settings.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// DocumentService stores uploaded scans and issues signed download links.
type DocumentService struct {
	storage documentFileStorage
	signer  documentSigner
	logger  *zap.Logger
	cfg     DocumentServiceConfig
	mimeSet map[string]struct{}
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(files documentFileStorage, signer documentSigner, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	return &DocumentService{storage: files, signer: signer, logger: logger, cfg: cfg, mimeSet: mimeSet}
}

// OwnsDocument reports whether ref was uploaded by userID.
func OwnsDocument(userID, ref string) bool {
	if userID == "" || strings.Contains(ref, "..") {
		return false
	}
	return strings.HasPrefix(ref, documentRoot+"/"+userID+"/")
}

// Upload validates and stores a scan, returning its opaque reference.
func (s *DocumentService) Upload(ctx context.Context, actor authz.Actor, kind models.DocumentKind, upload DocumentUpload) (*dto.UploadDocumentResponse, error) {
	if !actor.Can(authz.ActionDocumentUpload, authz.Resource{Kind: "document", OwnerID: actor.ID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can upload documents")
	}
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document kind %q", kind))
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	mimeType, err := sniffContentType(upload.Content)
	if err != nil {
		return nil, err
	}
	if _, ok := s.mimeSet[mimeType]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", mimeType))
	}

	name := fmt.Sprintf("%s/%s/%s_%s%s", documentRoot, actor.ID, kind, uuid.NewString(), documentExtension(upload.Filename, mimeType))
	ref, written, err := s.storage.SaveStream(name, upload.Content, s.cfg.MaxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	s.logger.Info("document uploaded",
		zap.String("user_id", actor.ID),
		zap.String("kind", string(kind)),
		zap.Int64("bytes", written),
	)
	return &dto.UploadDocumentResponse{
		Reference:   ref,
		Kind:        kind,
		Size:        written,
		ContentType: mimeType,
		DownloadURL: s.link(actor.ID, ref),
	}, nil
}

// Links returns signed download URLs keyed by bundle slot.
func (s *DocumentService) Links(ownerID string, bundle *models.DocumentBundle) map[string]string {
	if bundle == nil {
		return nil
	}
	links := make(map[string]string, 3)
	for slot, ref := range map[models.DocumentKind]string{
		models.DocumentKindIDCard:          bundle.IDCard,
		models.DocumentKindFeeStructure:    bundle.FeeStructure,
		models.DocumentKindAdmissionLetter: bundle.AdmissionLetter,
	} {
		if ref == "" {
			continue
		}
		if url := s.link(ownerID, ref); url != "" {
			links[string(slot)] = url
		}
	}
	return links
}

// Open resolves a signed token. Only the owner or staff may follow it.
func (s *DocumentService) Open(ctx context.Context, actor authz.Actor, token string) (*DocumentDownload, error) {
	owner, ref, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	if !actor.Can(authz.ActionApplicationView, authz.Resource{Kind: "document", OwnerID: owner}) || !OwnsDocument(owner, ref) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	file, err := s.storage.Open(ref)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &DocumentDownload{
		File:        file,
		Filename:    filepath.Base(ref),
		ContentType: extensionMime(filepath.Ext(ref)),
	}, nil
}

func (s *DocumentService) link(ownerID, ref string) string {
	token, _, err := s.signer.Generate(ownerID, ref)
	if err != nil {
		s.logger.Warn("failed to sign document link", zap.String("reference", ref), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s/documents/download/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
}

func sniffContentType(content io.ReadSeeker) (string, error) {
	if content == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "file reader missing")
	}
	header := make([]byte, 512)
	n, err := content.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	mimeType := http.DetectContentType(header[:n])
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(mimeType), nil
}

func documentExtension(original, mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if ext := strings.ToLower(filepath.Ext(original)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".bin"
}

func extensionMime(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}
