package dto

import "github.com/noah-isme/bursary-api/internal/models"

// UpsertProfileRequest is the PUT /profile payload.
type UpsertProfileRequest struct {
	Phone              string  `json:"phone" validate:"omitempty,min=10,max=15"`
	NationalID         string  `json:"nationalId" validate:"omitempty,max=20"`
	County             string  `json:"county" validate:"required,max=100"`
	Constituency       string  `json:"constituency" validate:"required,max=100"`
	Ward               string  `json:"ward" validate:"required,max=100"`
	Location           string  `json:"location" validate:"required,max=100"`
	SubLocation        string  `json:"subLocation" validate:"required,max=100"`
	SchoolName         string  `json:"schoolName" validate:"omitempty,max=200"`
	AdmissionNumber    string  `json:"admissionNumber" validate:"omitempty,max=50"`
	GuardianName       string  `json:"guardianName" validate:"omitempty,max=150"`
	GuardianPhone      string  `json:"guardianPhone" validate:"omitempty,max=15"`
	GuardianIDNumber   string  `json:"guardianIdNumber" validate:"omitempty,max=20"`
	GuardianIncome     float64 `json:"guardianIncome" validate:"gte=0"`
	HouseholdSize      int     `json:"householdSize" validate:"required,min=1,max=50"`
	GuardianIDDocument string  `json:"guardianIdDocument" validate:"omitempty,max=255"`
}

// ProfileResponse returns the profile with its completion percentage.
type ProfileResponse struct {
	User       models.UserInfo          `json:"user"`
	Phone      string                   `json:"phone,omitempty"`
	NationalID string                   `json:"nationalId,omitempty"`
	Profile    *models.ApplicantProfile `json:"profile,omitempty"`
	Completion int                      `json:"completion"`
}
