package models

import "time"

// UserRole classifies accounts for capability checks.
type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleCommittee  UserRole = "committee"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleCommittee, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	NationalID   *string    `db:"national_id" json:"national_id,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Constituency *string    `db:"constituency" json:"constituency,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PhoneNumber returns the registered phone or an empty string.
func (u *User) PhoneNumber() string {
	if u == nil || u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// RegisteredConstituency returns the account's constituency or an empty string.
func (u *User) RegisteredConstituency() string {
	if u == nil || u.Constituency == nil {
		return ""
	}
	return *u.Constituency
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalisePage clamps page and size to sane bounds and returns the SQL offset.
func NormalisePage(page, size, max int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > max {
		size = 20
	}
	return page, size, (page - 1) * size
}
