package models

import (
	"time"

	"github.com/google/uuid"
)

// Location is an optional sub-unit of a tenant. Archiving only hides it from new assignments.
type Location struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	TenantID   uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	Name       string    `db:"name"        json:"name"`
	IsArchived bool      `db:"is_archived" json:"is_archived"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}
