package models

import "time"

// DocumentBundle holds opaque storage references for one application.
// Empty strings mean the document was not supplied.
type DocumentBundle struct {
	ID              string    `db:"id" json:"id"`
	ApplicationID   string    `db:"application_id" json:"application_id"`
	IDCard          string    `db:"id_card" json:"id_card"`
	FeeStructure    string    `db:"fee_structure" json:"fee_structure"`
	AdmissionLetter string    `db:"admission_letter" json:"admission_letter,omitempty"`
	UploadedAt      time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// HasMandatory reports whether both the identity document and fee structure are present.
func (b *DocumentBundle) HasMandatory() bool {
	return b != nil && b.IDCard != "" && b.FeeStructure != ""
}

// FirstTime reports whether an admission letter signals a first-time applicant.
func (b *DocumentBundle) FirstTime() bool {
	return b != nil && b.AdmissionLetter != ""
}

// DocumentKind enumerates accepted upload slots.
type DocumentKind string

const (
	DocumentKindIDCard          DocumentKind = "id_card"
	DocumentKindFeeStructure    DocumentKind = "fee_structure"
	DocumentKindAdmissionLetter DocumentKind = "admission_letter"
	DocumentKindGuardianID      DocumentKind = "guardian_id"
)

// Valid reports whether the kind is accepted.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentKindIDCard, DocumentKindFeeStructure, DocumentKindAdmissionLetter, DocumentKindGuardianID:
		return true
	}
	return false
}
