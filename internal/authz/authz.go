// Package authz maps actors to the actions they may perform.
package authz

import (
	"github.com/noah-isme/bursary-api/internal/models"
)

// Action is a capability name.
type Action string

const (
	ActionApplicationSubmit   Action = "application:submit"
	ActionApplicationEdit     Action = "application:edit"
	ActionApplicationView     Action = "application:view"
	ActionApplicationList     Action = "application:list"
	ActionApplicationReview   Action = "application:review"
	ActionApplicationReject   Action = "application:reject"
	ActionApplicationDisburse Action = "application:disburse"
	ActionProfileManage       Action = "profile:manage"
	ActionDocumentUpload      Action = "document:upload"
	ActionAwardLetterDownload Action = "award_letter:download"
	ActionReportView          Action = "report:view"
	ActionReportExport        Action = "report:export"
	ActionAuditView           Action = "audit:view"
	ActionCycleManage         Action = "cycle:manage"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role models.UserRole
}

// Resource identifies the object an action targets. An empty OwnerID means unowned.
type Resource struct {
	Kind    string
	OwnerID string
}

// Rule grants an action to Roles unconditionally and to OwnerRoles on their own resources.
type Rule struct {
	Roles      []models.UserRole
	OwnerRoles []models.UserRole
}

// Policy is an action table.
type Policy map[Action]Rule

var (
	staff     = []models.UserRole{models.RoleCommittee, models.RoleAdmin, models.RoleSuperAdmin}
	admins    = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}
	students  = []models.UserRole{models.RoleStudent}
	everybody = []models.UserRole{models.RoleStudent, models.RoleCommittee, models.RoleAdmin, models.RoleSuperAdmin}
)

// DefaultPolicy is the office's role table.
var DefaultPolicy = Policy{
	ActionApplicationSubmit:   {Roles: students},
	ActionApplicationEdit:     {OwnerRoles: students},
	ActionApplicationView:     {Roles: staff, OwnerRoles: students},
	ActionApplicationList:     {Roles: staff},
	ActionApplicationReview:   {Roles: staff},
	ActionApplicationReject:   {Roles: admins},
	ActionApplicationDisburse: {Roles: admins},
	ActionProfileManage:       {Roles: admins, OwnerRoles: everybody},
	ActionDocumentUpload:      {Roles: students},
	ActionAwardLetterDownload: {Roles: staff, OwnerRoles: students},
	ActionReportView:          {Roles: staff},
	ActionReportExport:        {Roles: admins},
	ActionAuditView:           {Roles: admins},
	ActionCycleManage:         {Roles: admins},
}

// Allows reports whether actor may perform action on resource.
func (p Policy) Allows(actor Actor, action Action, resource Resource) bool {
	if actor.ID == "" || !actor.Role.Valid() {
		return false
	}
	rule, ok := p[action]
	if !ok {
		return false
	}
	if contains(rule.Roles, actor.Role) {
		return true
	}
	return resource.OwnerID != "" && resource.OwnerID == actor.ID && contains(rule.OwnerRoles, actor.Role)
}

// Can checks action against the default policy.
func (a Actor) Can(action Action, resource Resource) bool {
	return DefaultPolicy.Allows(a, action, resource)
}

// IsStaff reports whether the actor reviews or administers applications.
func (a Actor) IsStaff() bool {
	return contains(staff, a.Role)
}

// FromClaims builds an actor from access token claims.
func FromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, Role: claims.Role}
}

func contains(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
