// Package models contains shared data models used across the Inventomatic codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a principal's system role.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// AccountStatus is the activation state of a principal.
type AccountStatus string

const (
	StatusPendingActivation  AccountStatus = "PENDING_ACTIVATION"
	StatusActive             AccountStatus = "ACTIVE"
	StatusInactive           AccountStatus = "INACTIVE"
	StatusForcePasswordReset AccountStatus = "FORCE_PASSWORD_RESET"
)

// Valid reports whether s is one of the known account statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPendingActivation, StatusActive, StatusInactive, StatusForcePasswordReset:
		return true
	}
	return false
}

// Principal is a user account. ADMIN principals have no tenant; every other role must have one.
// The credential hash is never serialized.
type Principal struct {
	ID             uuid.UUID     `db:"id"              json:"id"`
	TenantID       *uuid.UUID    `db:"tenant_id"       json:"tenant_id"`
	ExternalID     string        `db:"external_id"     json:"external_id"`
	FirstName      string        `db:"first_name"      json:"first_name"`
	LastName       string        `db:"last_name"       json:"last_name"`
	Role           Role          `db:"role"            json:"role"`
	AccountStatus  AccountStatus `db:"account_status"  json:"account_status"`
	LocationID     *uuid.UUID    `db:"location_id"     json:"location_id,omitempty"`
	CredentialHash string        `db:"credential_hash" json:"-"`
	CreatedAt      time.Time     `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"      json:"updated_at"`
}

// InTenant reports whether p belongs to the given tenant.
func (p *Principal) InTenant(tenantID uuid.UUID) bool {
	return p.TenantID != nil && *p.TenantID == tenantID
}

// TenantUser is a principal together with its explicit permission grants.
type TenantUser struct {
	Principal
	Permissions []Permission `json:"permissions"`
}
