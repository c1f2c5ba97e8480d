package models

import "time"

// StatusCount is the number of applications in one status.
type StatusCount struct {
	Status ApplicationStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}

// ScoreBucket counts applications whose score falls in [Min, Max].
type ScoreBucket struct {
	Label string `db:"label" json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `db:"count" json:"count"`
}

// ApplicationTotals are the headline counters for the staff dashboard.
type ApplicationTotals struct {
	Total        int     `db:"total" json:"total"`
	Pending      int     `db:"pending" json:"pending"`
	Recommended  int     `db:"recommended" json:"recommended"`
	Approved     int     `db:"approved" json:"approved"`
	Paid         int     `db:"paid" json:"paid"`
	Rejected     int     `db:"rejected" json:"rejected"`
	AutoRejected int     `db:"auto_rejected" json:"auto_rejected"`
	AverageScore float64 `db:"average_score" json:"average_score"`
}

// DashboardStats is the staff overview.
type DashboardStats struct {
	Totals            ApplicationTotals `json:"totals"`
	BudgetUsed        float64           `json:"budget_used"`
	PlannedBudget     float64           `json:"planned_budget"`
	RemainingBudget   float64           `json:"remaining_budget"`
	ApprovalRate      float64           `json:"approval_rate"`
	ActiveCycle       *BursaryCycle     `json:"active_cycle,omitempty"`
	StatusCounts      []StatusCount     `json:"status_counts"`
	ScoreDistribution []ScoreBucket     `json:"score_distribution"`
	RecentPayments    []PaymentSummary  `json:"recent_payments"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// FinancialYear aggregates disbursements for one academic year.
type FinancialYear struct {
	AcademicYear string  `db:"academic_year" json:"academic_year"`
	PaidCount    int     `db:"paid_count" json:"paid_count"`
	TotalPaid    float64 `db:"total_paid" json:"total_paid"`
}

// TransparencySummary is published on the public portal.
type TransparencySummary struct {
	TotalDisbursed float64       `json:"total_disbursed"`
	StudentsHelped int           `json:"students_helped"`
	ActiveCycle    *BursaryCycle `json:"active_cycle,omitempty"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of runtime and workflow counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Submissions              uint64    `json:"submissions"`
	AutoRejections           uint64    `json:"auto_rejections"`
	Disbursements            uint64    `json:"disbursements"`
	FailedDisbursements      uint64    `json:"failed_disbursements"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
