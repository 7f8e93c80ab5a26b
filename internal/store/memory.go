package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// MemoryStore is an in-process Store. Transactions are serialized by a single
// mutex and rolled back by restoring a snapshot taken when they began.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&memTx{memData: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetTenant(ctx, id)
}

func (s *MemoryStore) ListTenants(ctx context.Context) ([]*models.TenantSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListTenants(ctx)
}

func (s *MemoryStore) GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetPrincipal(ctx, id)
}

func (s *MemoryStore) GetPrincipalByExternalID(ctx context.Context, externalID string) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetPrincipalByExternalID(ctx, externalID)
}

func (s *MemoryStore) ListTenantUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListTenantUsers(ctx, tenantID)
}

func (s *MemoryStore) ListGrants(ctx context.Context, userID uuid.UUID) ([]models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListGrants(ctx, userID)
}

func (s *MemoryStore) AdminExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AdminExists(ctx)
}

func (s *MemoryStore) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetLocation(ctx, id)
}

func (s *MemoryStore) ListLocations(ctx context.Context, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListLocations(ctx, tenantID, includeArchived)
}

// memTx runs with MemoryStore.mu already held.
type memTx struct {
	*memData
}

// LockTenant is a lookup; the store mutex already serializes the transaction.
func (tx *memTx) LockTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return tx.GetTenant(ctx, id)
}

type memData struct {
	tenants    map[uuid.UUID]models.Tenant
	principals map[uuid.UUID]models.Principal
	grants     map[uuid.UUID][]models.Permission
	locations  map[uuid.UUID]models.Location
}

func newMemData() *memData {
	return &memData{
		tenants:    make(map[uuid.UUID]models.Tenant),
		principals: make(map[uuid.UUID]models.Principal),
		grants:     make(map[uuid.UUID][]models.Permission),
		locations:  make(map[uuid.UUID]models.Location),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, t := range d.tenants {
		c.tenants[id] = t
	}
	for id, p := range d.principals {
		c.principals[id] = copyPrincipal(p)
	}
	for id, g := range d.grants {
		c.grants[id] = append([]models.Permission(nil), g...)
	}
	for id, l := range d.locations {
		c.locations[id] = l
	}
	return c
}

func copyPrincipal(p models.Principal) models.Principal {
	if p.TenantID != nil {
		id := *p.TenantID
		p.TenantID = &id
	}
	if p.LocationID != nil {
		id := *p.LocationID
		p.LocationID = &id
	}
	return p
}

// --- Tenants ---

func (d *memData) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (d *memData) ListTenants(_ context.Context) ([]*models.TenantSummary, error) {
	counts := make(map[uuid.UUID]int)
	for _, p := range d.principals {
		if p.TenantID != nil {
			counts[*p.TenantID]++
		}
	}
	tenants := make([]*models.TenantSummary, 0, len(d.tenants))
	for _, t := range d.tenants {
		tenants = append(tenants, &models.TenantSummary{Tenant: t, UserCount: counts[t.ID]})
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (d *memData) CreateTenant(_ context.Context, t *models.Tenant) error {
	if _, ok := d.tenants[t.ID]; ok {
		return ErrDuplicateKey
	}
	d.tenants[t.ID] = *t
	return nil
}

func (d *memData) UpdateTenant(_ context.Context, t *models.Tenant) error {
	existing, ok := d.tenants[t.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = t.Name
	existing.IsActive = t.IsActive
	existing.UpdatedAt = time.Now().UTC()
	d.tenants[t.ID] = existing
	return nil
}

// --- Principals ---

func (d *memData) GetPrincipal(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	p, ok := d.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = copyPrincipal(p)
	return &p, nil
}

func (d *memData) GetPrincipalByExternalID(_ context.Context, externalID string) (*models.Principal, error) {
	for _, p := range d.principals {
		if p.ExternalID == externalID {
			p = copyPrincipal(p)
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListTenantUsers(_ context.Context, tenantID uuid.UUID) ([]*models.TenantUser, error) {
	var users []*models.TenantUser
	for _, p := range d.principals {
		if !p.InTenant(tenantID) {
			continue
		}
		perms := append([]models.Permission{}, d.grants[p.ID]...)
		users = append(users, &models.TenantUser{Principal: copyPrincipal(p), Permissions: perms})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		return users[i].FirstName < users[j].FirstName
	})
	return users, nil
}

func (d *memData) AdminExists(_ context.Context) (bool, error) {
	for _, p := range d.principals {
		if p.Role == models.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (d *memData) CountManagers(_ context.Context, tenantID uuid.UUID) (int, error) {
	n := 0
	for _, p := range d.principals {
		if p.Role == models.RoleManager && p.InTenant(tenantID) {
			n++
		}
	}
	return n, nil
}

func (d *memData) CreatePrincipal(_ context.Context, p *models.Principal) error {
	if _, ok := d.principals[p.ID]; ok {
		return ErrDuplicateKey
	}
	for _, existing := range d.principals {
		if existing.ExternalID == p.ExternalID {
			return ErrDuplicateKey
		}
	}
	d.principals[p.ID] = copyPrincipal(*p)
	return nil
}

func (d *memData) UpdatePrincipalRole(_ context.Context, id uuid.UUID, from, to models.Role) error {
	p, ok := d.principals[id]
	if !ok || p.Role != from {
		return ErrConflict
	}
	p.Role = to
	p.UpdatedAt = time.Now().UTC()
	d.principals[id] = p
	return nil
}

func (d *memData) UpdatePrincipalStatus(_ context.Context, id uuid.UUID, from, to models.AccountStatus) error {
	p, ok := d.principals[id]
	if !ok || p.AccountStatus != from {
		return ErrConflict
	}
	p.AccountStatus = to
	p.UpdatedAt = time.Now().UTC()
	d.principals[id] = p
	return nil
}

func (d *memData) UpdatePrincipalProfile(_ context.Context, id uuid.UUID, firstName, lastName string) error {
	p, ok := d.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.FirstName = firstName
	p.LastName = lastName
	p.UpdatedAt = time.Now().UTC()
	d.principals[id] = p
	return nil
}

func (d *memData) SetCredentialHash(_ context.Context, id uuid.UUID, hash string) error {
	p, ok := d.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.CredentialHash = hash
	p.UpdatedAt = time.Now().UTC()
	d.principals[id] = p
	return nil
}

// --- Permission grants ---

func (d *memData) ListGrants(_ context.Context, userID uuid.UUID) ([]models.Permission, error) {
	return append([]models.Permission{}, d.grants[userID]...), nil
}

func (d *memData) DeleteGrants(_ context.Context, userID uuid.UUID) error {
	delete(d.grants, userID)
	return nil
}

func (d *memData) ReplaceGrants(_ context.Context, userID, _ uuid.UUID, perms []models.Permission) error {
	delete(d.grants, userID)
	if len(perms) == 0 {
		return nil
	}
	seen := make(map[models.Permission]bool, len(perms))
	out := make([]models.Permission, 0, len(perms))
	for _, p := range perms {
		if seen[p] {
			return ErrDuplicateKey
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	d.grants[userID] = out
	return nil
}

// --- Locations ---

func (d *memData) GetLocation(_ context.Context, id uuid.UUID) (*models.Location, error) {
	l, ok := d.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (d *memData) ListLocations(_ context.Context, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error) {
	var locations []*models.Location
	for _, l := range d.locations {
		if l.TenantID != tenantID || (l.IsArchived && !includeArchived) {
			continue
		}
		l := l
		locations = append(locations, &l)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].Name < locations[j].Name })
	return locations, nil
}

func (d *memData) CreateLocation(_ context.Context, l *models.Location) error {
	if _, ok := d.locations[l.ID]; ok {
		return ErrDuplicateKey
	}
	d.locations[l.ID] = *l
	return nil
}

func (d *memData) ArchiveLocation(_ context.Context, id, tenantID uuid.UUID) error {
	l, ok := d.locations[id]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	l.IsArchived = true
	l.UpdatedAt = time.Now().UTC()
	d.locations[id] = l
	return nil
}
