package dto

// CreateCycleRequest is the POST /cycles payload.
type CreateCycleRequest struct {
	Year          string  `json:"year" validate:"required,academic_year"`
	PlannedBudget float64 `json:"plannedBudget" validate:"gte=0"`
}
