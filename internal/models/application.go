package models

import "time"

// ApplicationStatus is the lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "pending"
	ApplicationStatusRecommended ApplicationStatus = "recommended"
	ApplicationStatusApproved    ApplicationStatus = "approved"
	ApplicationStatusPaid        ApplicationStatus = "paid"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusRecommended, ApplicationStatusApproved, ApplicationStatusPaid, ApplicationStatusRejected:
		return true
	}
	return false
}

// Label returns the human readable status used in exports and letters.
func (s ApplicationStatus) Label() string {
	switch s {
	case ApplicationStatusPending:
		return "Pending Review"
	case ApplicationStatusRecommended:
		return "Recommended by Committee"
	case ApplicationStatusApproved:
		return "Approved for Disbursement"
	case ApplicationStatusPaid:
		return "Funds Disbursed"
	case ApplicationStatusRejected:
		return "Rejected"
	}
	return string(s)
}

// AutoRejectionPrefix marks admin comments written by the screening engine.
const AutoRejectionPrefix = "AUTO-REJECTION: "

// Application is one funding request for one academic cycle.
type Application struct {
	ID                string            `db:"id" json:"id"`
	StudentID         string            `db:"student_id" json:"student_id"`
	AcademicYear      string            `db:"academic_year" json:"academic_year"`
	AmountRequested   float64           `db:"amount_requested" json:"amount_requested"`
	Status            ApplicationStatus `db:"status" json:"status"`
	Score             int               `db:"score" json:"score"`
	CommitteeComments *string           `db:"committee_comments" json:"committee_comments,omitempty"`
	AdminComments     *string           `db:"admin_comments" json:"admin_comments,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail joins an application with the applicant columns used by listings and exports.
type ApplicationDetail struct {
	Application
	StudentName     string  `db:"student_name" json:"student_name"`
	StudentEmail    string  `db:"student_email" json:"student_email"`
	NationalID      *string `db:"national_id" json:"national_id,omitempty"`
	SchoolName      *string `db:"school_name" json:"school_name,omitempty"`
	AdmissionNumber *string `db:"admission_number" json:"admission_number,omitempty"`
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	StudentID    string
	AcademicYear string
	Statuses     []ApplicationStatus
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
