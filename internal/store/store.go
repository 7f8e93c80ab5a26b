package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a write lost a race with a concurrent writer
// (a conditional update matched no row, or the database aborted the transaction).
var ErrConflict = errors.New("concurrent modification")

// Reader holds the read operations shared by Store and Tx.
type Reader interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.TenantSummary, error)

	GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	GetPrincipalByExternalID(ctx context.Context, externalID string) (*models.Principal, error)
	ListTenantUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantUser, error)
	ListGrants(ctx context.Context, userID uuid.UUID) ([]models.Permission, error)
	AdminExists(ctx context.Context) (bool, error)

	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	ListLocations(ctx context.Context, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error)
}

// Tx is a unit of work. Every write goes through a Tx so a workflow either
// commits all of its writes or none of them.
type Tx interface {
	Reader

	// LockTenant returns the tenant and holds a lock on it until the
	// transaction ends. Writes that depend on tenant-wide counts (the number
	// of managers) must take this lock first.
	LockTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	CountManagers(ctx context.Context, tenantID uuid.UUID) (int, error)

	CreateTenant(ctx context.Context, t *models.Tenant) error
	UpdateTenant(ctx context.Context, t *models.Tenant) error

	CreatePrincipal(ctx context.Context, p *models.Principal) error
	// UpdatePrincipalRole changes the role only if it is still from; otherwise ErrConflict.
	UpdatePrincipalRole(ctx context.Context, id uuid.UUID, from, to models.Role) error
	// UpdatePrincipalStatus changes the status only if it is still from; otherwise ErrConflict.
	UpdatePrincipalStatus(ctx context.Context, id uuid.UUID, from, to models.AccountStatus) error
	UpdatePrincipalProfile(ctx context.Context, id uuid.UUID, firstName, lastName string) error
	SetCredentialHash(ctx context.Context, id uuid.UUID, hash string) error

	DeleteGrants(ctx context.Context, userID uuid.UUID) error
	ReplaceGrants(ctx context.Context, userID, tenantID uuid.UUID, perms []models.Permission) error

	CreateLocation(ctx context.Context, l *models.Location) error
	ArchiveLocation(ctx context.Context, id, tenantID uuid.UUID) error
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Reader
	Ping(ctx context.Context) error
	// InTx runs fn in a transaction, committing if fn returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*postgresTx)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
