package models

import "github.com/google/uuid"

// Permission is a tenant-domain action that can be granted to STAFF principals.
type Permission string

const (
	PermInventoryCreate   Permission = "inventory:create"
	PermInventoryUpdate   Permission = "inventory:update"
	PermInventoryArchive  Permission = "inventory:archive"
	PermSupplierCreate    Permission = "supplier:create"
	PermSupplierUpdate    Permission = "supplier:update"
	PermSupplierArchive   Permission = "supplier:archive"
	PermTransactionCreate Permission = "transaction:create"
)

// AllPermissions is the closed set of grantable permissions.
var AllPermissions = []Permission{
	PermInventoryCreate,
	PermInventoryUpdate,
	PermInventoryArchive,
	PermSupplierCreate,
	PermSupplierUpdate,
	PermSupplierArchive,
	PermTransactionCreate,
}

// Valid reports whether p is in AllPermissions.
func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

// PermissionGrant is an explicit grant for a STAFF principal. Managers never hold grants.
type PermissionGrant struct {
	UserID     uuid.UUID  `db:"user_id"    json:"user_id"`
	TenantID   uuid.UUID  `db:"tenant_id"  json:"tenant_id"`
	Permission Permission `db:"permission" json:"permission"`
}
