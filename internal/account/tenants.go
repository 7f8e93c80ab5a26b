package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/audit"
	"github.com/kiranshivaraju/inventomatic/internal/authz"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// CreateTenant creates an active tenant. ADMIN only.
func (s *Service) CreateTenant(ctx context.Context, actor *models.Principal, name string) (*models.Tenant, error) {
	if err := s.engine.CanAdministerTenants(actor); err != nil {
		return nil, err
	}
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tenant := &models.Tenant{ID: uuid.New(), Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventTenantCreated,
		ActorID:  actor.ID,
		TenantID: &tenant.ID,
	})
	return tenant, nil
}

// ListTenants returns every tenant with its user count. ADMIN only.
func (s *Service) ListTenants(ctx context.Context, actor *models.Principal) ([]*models.TenantSummary, error) {
	if err := s.engine.CanAdministerTenants(actor); err != nil {
		return nil, err
	}
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// GetTenant returns a tenant the actor may view.
func (s *Service) GetTenant(ctx context.Context, actor *models.Principal, tenantID uuid.UUID) (*models.Tenant, error) {
	if err := s.engine.CanViewTenant(actor, tenantID); err != nil {
		return nil, err
	}
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, notFound("tenant", err)
	}
	return tenant, nil
}

// RenameTenant changes the display name of a tenant.
func (s *Service) RenameTenant(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, name string) (*models.Tenant, error) {
	if err := s.engine.CanManageTenant(actor, tenantID); err != nil {
		return nil, err
	}
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		tenant, err = tx.LockTenant(ctx, tenantID)
		if err != nil {
			return notFound("tenant", err)
		}
		tenant.Name = name
		return tx.UpdateTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventTenantRenamed,
		ActorID:  actor.ID,
		TenantID: &tenant.ID,
		Details:  map[string]string{"name": name},
	})
	return tenant, nil
}

// SetTenantActive activates or deactivates a tenant. Deactivation locks out
// every principal of the tenant at their next request. ADMIN only.
func (s *Service) SetTenantActive(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, active bool) (*models.Tenant, error) {
	if err := s.engine.CanToggleTenant(actor, tenantID); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		tenant, err = tx.LockTenant(ctx, tenantID)
		if err != nil {
			return notFound("tenant", err)
		}
		if tenant.IsActive == active {
			return &authz.Error{Reason: authz.ReasonNoOp, Message: fmt.Sprintf("tenant is_active is already %t", active)}
		}
		tenant.IsActive = active
		return tx.UpdateTenant(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventTenantStatusChanged,
		ActorID:  actor.ID,
		TenantID: &tenant.ID,
		Details:  map[string]string{"is_active": fmt.Sprint(active)},
	})
	return tenant, nil
}

// ListLocations returns the locations of a tenant the actor may view.
func (s *Service) ListLocations(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error) {
	if err := s.engine.CanViewTenant(actor, tenantID); err != nil {
		return nil, err
	}
	locations, err := s.store.ListLocations(ctx, tenantID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// CreateLocation adds a location to a tenant.
func (s *Service) CreateLocation(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, name string) (*models.Location, error) {
	if err := s.engine.CanManageTenant(actor, tenantID); err != nil {
		return nil, err
	}
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}

	now := s.now()
	location := &models.Location{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: now, UpdatedAt: now}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockTenant(ctx, tenantID); err != nil {
			return notFound("tenant", err)
		}
		if err := tx.CreateLocation(ctx, location); err != nil {
			return fmt.Errorf("create location: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventLocationCreated,
		ActorID:  actor.ID,
		TargetID: location.ID,
		TenantID: &location.TenantID,
	})
	return location, nil
}

// ArchiveLocation hides a location from new assignments. Principals already
// assigned to it keep the assignment.
func (s *Service) ArchiveLocation(ctx context.Context, actor *models.Principal, locationID uuid.UUID) (*models.Location, error) {
	var location *models.Location
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		location, err = tx.GetLocation(ctx, locationID)
		if err != nil {
			return notFound("location", err)
		}
		if err := s.engine.CanManageTenant(actor, location.TenantID); err != nil {
			return err
		}
		if location.IsArchived {
			return &authz.Error{Reason: authz.ReasonNoOp, Message: "location is already archived"}
		}
		if err := tx.ArchiveLocation(ctx, location.ID, location.TenantID); err != nil {
			return fmt.Errorf("archive location: %w", err)
		}
		location.IsArchived = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventLocationArchived,
		ActorID:  actor.ID,
		TargetID: location.ID,
		TenantID: &location.TenantID,
	})
	return location, nil
}
