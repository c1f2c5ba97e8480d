package models

import "time"

// Payment records a completed disbursement. At most one exists per application.
type Payment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	AmountAwarded float64   `db:"amount_awarded" json:"amount_awarded"`
	Reference     string    `db:"payment_reference" json:"payment_reference"`
	Provider      string    `db:"provider" json:"provider"`
	DisbursedBy   *string   `db:"disbursed_by" json:"disbursed_by,omitempty"`
	PaidAt        time.Time `db:"paid_at" json:"paid_at"`
}

// PaymentSummary enriches a payment with the beneficiary for dashboards.
type PaymentSummary struct {
	Payment
	StudentName  string `db:"student_name" json:"student_name"`
	AcademicYear string `db:"academic_year" json:"academic_year"`
}
