package screening

import (
	"fmt"
	"strings"

	"github.com/noah-isme/bursary-api/internal/models"
)

// Outcome messages.
const (
	ReasonPassed            = "Passed automated screening."
	ReasonProfileIncomplete = "Student profile is incomplete."
	ReasonIncomeTooHigh     = "Guardian income exceeds the maximum threshold for this financial aid."
	ReasonMissingDocuments  = "Mandatory documents (ID Card or Fee Structure) are missing or corrupted."
)

// Input is everything the engine looks at. Profile and Bundle may be nil.
type Input struct {
	Profile      *models.ApplicantProfile
	Constituency string
	Bundle       *models.DocumentBundle
}

// Breakdown records the points awarded per band.
type Breakdown struct {
	Income    int `json:"income"`
	Household int `json:"household"`
	Documents int `json:"documents"`
}

// Result is the engine verdict. Score is zero when Passed is false.
type Result struct {
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason"`
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Engine applies a Policy. It holds no other state and is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine validates the policy and builds an engine.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid screening policy: %w", err)
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the thresholds in use.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ConstituencyReason is the rejection message for applicants outside the eligible area.
func ConstituencyReason(required string) string {
	return fmt.Sprintf("This bursary is only for residents of %s Constituency.", required)
}

// Evaluate screens the input. Checks short-circuit on the first failure.
func (e *Engine) Evaluate(in Input) Result {
	if in.Profile == nil {
		return Result{Reason: ReasonProfileIncomplete}
	}

	registered := strings.TrimSpace(in.Constituency)
	if registered != "" && !strings.EqualFold(registered, strings.TrimSpace(e.policy.EligibleConstituency)) {
		return Result{Reason: ConstituencyReason(e.policy.EligibleConstituency)}
	}

	if in.Profile.GuardianIncome > e.policy.MaxMonthlyIncome {
		return Result{Reason: ReasonIncomeTooHigh}
	}

	if !in.Bundle.HasMandatory() {
		return Result{Reason: ReasonMissingDocuments}
	}

	breakdown := Breakdown{
		Income:    e.policy.incomePoints(in.Profile.GuardianIncome),
		Household: e.policy.householdPoints(in.Profile.HouseholdSize),
		Documents: e.policy.ContinuingPoints,
	}
	if in.Bundle.FirstTime() {
		breakdown.Documents = e.policy.FirstTimePoints
	}

	return Result{
		Passed:    true,
		Reason:    ReasonPassed,
		Score:     clamp(breakdown.Income+breakdown.Household+breakdown.Documents, 0, 100),
		Breakdown: breakdown,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
