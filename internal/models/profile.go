package models

import "time"

// ApplicantProfile holds residency, school and guardian details for a student.
type ApplicantProfile struct {
	ID                 string    `db:"id" json:"id"`
	UserID             string    `db:"user_id" json:"user_id"`
	County             string    `db:"county" json:"county"`
	Constituency       string    `db:"constituency" json:"constituency"`
	Ward               string    `db:"ward" json:"ward"`
	Location           string    `db:"location" json:"location"`
	SubLocation        string    `db:"sub_location" json:"sub_location"`
	SchoolName         string    `db:"school_name" json:"school_name"`
	AdmissionNumber    string    `db:"admission_number" json:"admission_number"`
	GuardianName       string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone      string    `db:"guardian_phone" json:"guardian_phone"`
	GuardianIDNumber   string    `db:"guardian_id_number" json:"guardian_id_number"`
	GuardianIncome     float64   `db:"guardian_income" json:"guardian_income"`
	HouseholdSize      int       `db:"household_size" json:"household_size"`
	GuardianIDDocument string    `db:"guardian_id_document" json:"guardian_id_document,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
