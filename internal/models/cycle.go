package models

import "time"

// BursaryCycle is a funding period with its planned budget. Only one is active at a time.
type BursaryCycle struct {
	ID            string    `db:"id" json:"id"`
	Year          string    `db:"year" json:"year"`
	PlannedBudget float64   `db:"planned_budget" json:"planned_budget"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
