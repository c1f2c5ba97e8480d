package dto

import (
	"github.com/noah-isme/bursary-api/internal/lifecycle"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/screening"
)

// DocumentRefs are storage references returned by POST /documents.
type DocumentRefs struct {
	IDCard          string `json:"idCard" validate:"omitempty,max=255"`
	FeeStructure    string `json:"feeStructure" validate:"omitempty,max=255"`
	AdmissionLetter string `json:"admissionLetter" validate:"omitempty,max=255"`
}

// SubmitApplicationRequest is the POST /applications payload.
type SubmitApplicationRequest struct {
	AcademicYear    string       `json:"academicYear" validate:"required,academic_year"`
	AmountRequested float64      `json:"amountRequested" validate:"required,gt=0"`
	Documents       DocumentRefs `json:"documents"`
}

// EditApplicationRequest is the PUT /applications/:id payload. Empty document refs keep the stored ones.
type EditApplicationRequest struct {
	AmountRequested float64      `json:"amountRequested" validate:"required,gt=0"`
	Documents       DocumentRefs `json:"documents"`
}

// SubmissionResult reports the stored application and its screening verdict.
type SubmissionResult struct {
	Application *models.Application    `json:"application"`
	Documents   *models.DocumentBundle `json:"documents"`
	Screening   screening.Result       `json:"screening"`
	Events      []lifecycle.Event      `json:"-"`
}

// RecommendRequest is the committee review payload.
type RecommendRequest struct {
	Score    int    `json:"score" validate:"min=0,max=100"`
	Comments string `json:"comments" validate:"required,max=2000"`
}

// RejectRequest is the administrative rejection payload.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// BulkDisburseRequest lists applications to pay.
type BulkDisburseRequest struct {
	ApplicationIDs []string `json:"applicationIds" validate:"required,min=1,max=200,dive,required"`
}

// DisbursementResult reports one disbursement attempt.
type DisbursementResult struct {
	ApplicationID string          `json:"applicationId"`
	Success       bool            `json:"success"`
	Payment       *models.Payment `json:"payment,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// BulkDisbursementResult aggregates per-item outcomes.
type BulkDisbursementResult struct {
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Results   []DisbursementResult `json:"results"`
}

// ApplicationQuery mirrors GET /applications filters.
type ApplicationQuery struct {
	AcademicYear string
	Status       []models.ApplicationStatus
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// ApplicationView is an application with its documents and payment.
type ApplicationView struct {
	*models.ApplicationDetail
	Documents     *models.DocumentBundle `json:"documents,omitempty"`
	DocumentLinks map[string]string      `json:"documentLinks,omitempty"`
	Payment       *models.Payment        `json:"payment,omitempty"`
	StatusLabel   string                 `json:"statusLabel"`
}
