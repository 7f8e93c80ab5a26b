package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a university department. Every non-admin principal belongs to exactly one tenant.
// Tenants are never deleted; IsActive=false locks out every principal of the tenant.
type Tenant struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	IsActive  bool      `db:"is_active"  json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TenantSummary is a tenant with its user count, as shown on the admin tenant list.
type TenantSummary struct {
	Tenant
	UserCount int `db:"user_count" json:"user_count"`
}
