package models

import "time"

// Audit actions recorded for every state change.
const (
	AuditActionRegister          = "Registered account"
	AuditActionLogin             = "Login"
	AuditActionLogout            = "Logout"
	AuditActionPasswordChange    = "Password change"
	AuditActionProfileUpdate     = "Updated profile"
	AuditActionSubmit            = "Submitted application"
	AuditActionEdit              = "Edited application"
	AuditActionAutoReject        = "System Auto-Rejection"
	AuditActionReview            = "Reviewed application"
	AuditActionReject            = "Rejected application"
	AuditActionApprove           = "Approved application"
	AuditActionDisburse          = "Disbursed funds"
	AuditActionDisburseFailed    = "Disbursement failed"
	AuditActionCycleCreate       = "Created bursary cycle"
	AuditActionCycleActivate     = "Activated bursary cycle"
	AuditActionApplicationExport = "Exported applications"
)

// AuditLog is an append-only trail entry. A nil UserID marks a system action.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	ActorName  *string   `db:"actor_name" json:"actor_name,omitempty"`
	Action     string    `db:"action" json:"action"`
	Details    string    `db:"details" json:"details"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Action     string
	Resource   string
	ResourceID string
	UserID     string
	Page       int
	PageSize   int
}
