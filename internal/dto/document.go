package dto

import "github.com/noah-isme/bursary-api/internal/models"

// UploadDocumentResponse describes a stored upload.
type UploadDocumentResponse struct {
	Reference   string              `json:"reference"`
	Kind        models.DocumentKind `json:"kind"`
	Size        int64               `json:"size"`
	ContentType string              `json:"contentType"`
	DownloadURL string              `json:"downloadUrl"`
}
