// Package account applies authorized lifecycle mutations to principals and
// tenants. Every mutation runs in one store transaction with the tenant row
// locked, and consults the authorization engine with state read under that
// lock.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/apperr"
	"github.com/kiranshivaraju/inventomatic/internal/audit"
	"github.com/kiranshivaraju/inventomatic/internal/authz"
	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/kiranshivaraju/inventomatic/internal/lifecycle"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

const maxNameLength = 100

// Service performs account and tenant mutations.
type Service struct {
	store       store.Store
	engine      *authz.Engine
	credentials *credential.Issuer
	audit       *audit.Logger
	now         func() time.Time
}

// NewService creates an account Service. If auditLog is nil, audit entries go to slog.Default().
func NewService(s store.Store, engine *authz.Engine, credentials *credential.Issuer, auditLog *audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	return &Service{
		store:       s,
		engine:      engine,
		credentials: credentials,
		audit:       auditLog,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type roleCheck func(actor, target *models.Principal, newRole models.Role, managerCount int) error

// ChangeRole is the ADMIN path for promoting and demoting tenant principals.
func (s *Service) ChangeRole(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role) (*models.Principal, error) {
	return s.changeRole(ctx, actor, targetID, newRole, s.engine.CanChangeRole)
}

// ManagerChangeRole is the MANAGER path for changing the role of STAFF in their own tenant.
func (s *Service) ManagerChangeRole(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role) (*models.Principal, error) {
	return s.changeRole(ctx, actor, targetID, newRole, s.engine.CanManagerChangeStaffRole)
}

func (s *Service) changeRole(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role, check roleCheck) (*models.Principal, error) {
	if !newRole.Valid() {
		return nil, apperr.Invalid("role", "unknown role %q", newRole)
	}

	var updated *models.Principal
	var oldRole models.Role
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		target, err := lockTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}

		managers := 0
		if target.TenantID != nil {
			managers, err = tx.CountManagers(ctx, *target.TenantID)
			if err != nil {
				return fmt.Errorf("count managers: %w", err)
			}
		}
		if err := check(actor, target, newRole, managers); err != nil {
			return err
		}

		if err := tx.UpdatePrincipalRole(ctx, target.ID, target.Role, newRole); err != nil {
			return err
		}
		// Grants never survive a role change in either direction.
		if err := tx.DeleteGrants(ctx, target.ID); err != nil {
			return fmt.Errorf("delete grants: %w", err)
		}

		oldRole = target.Role
		target.Role = newRole
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventRoleChanged,
		ActorID:  actor.ID,
		TargetID: updated.ID,
		TenantID: updated.TenantID,
		Details:  map[string]string{"from": string(oldRole), "to": string(newRole)},
	})
	return updated, nil
}

// ResetPassword forces the target into FORCE_PASSWORD_RESET with a fresh
// temporary credential. The plaintext is returned once and never stored.
func (s *Service) ResetPassword(ctx context.Context, actor *models.Principal, targetID uuid.UUID) (string, error) {
	var plain string
	var target *models.Principal
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		target, err = lockTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if err := s.engine.CanResetPassword(actor, target); err != nil {
			return err
		}

		next, err := lifecycle.Next(target.AccountStatus, lifecycle.ResetForced)
		if err != nil {
			return err
		}

		var hash string
		plain, hash, err = s.credentials.Issue(target.CredentialHash)
		if err != nil {
			return err
		}
		if err := tx.SetCredentialHash(ctx, target.ID, hash); err != nil {
			return fmt.Errorf("bind credential: %w", err)
		}
		if err := tx.UpdatePrincipalStatus(ctx, target.ID, target.AccountStatus, next); err != nil {
			return err
		}
		target.AccountStatus = next
		return nil
	})
	if err != nil {
		return "", err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventPasswordReset,
		ActorID:  actor.ID,
		TargetID: target.ID,
		TenantID: target.TenantID,
	})
	return plain, nil
}

// SetAccountStatus activates or deactivates the target.
func (s *Service) SetAccountStatus(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newStatus models.AccountStatus) (*models.Principal, error) {
	if !newStatus.Valid() {
		return nil, apperr.Invalid("status", "unknown account status %q", newStatus)
	}

	var target *models.Principal
	var oldStatus models.AccountStatus
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		target, err = lockTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if err := s.engine.CanChangeAccountStatus(actor, target, newStatus); err != nil {
			return err
		}

		event, err := lifecycle.EventFor(newStatus)
		if err != nil {
			return err
		}
		next, err := lifecycle.Next(target.AccountStatus, event)
		if err != nil {
			return err
		}
		if err := tx.UpdatePrincipalStatus(ctx, target.ID, target.AccountStatus, next); err != nil {
			return err
		}
		oldStatus = target.AccountStatus
		target.AccountStatus = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventStatusChanged,
		ActorID:  actor.ID,
		TargetID: target.ID,
		TenantID: target.TenantID,
		Details:  map[string]string{"from": string(oldStatus), "to": string(target.AccountStatus)},
	})
	return target, nil
}

// SetCredential replaces the caller's own credential after verifying the
// current one. A principal in PENDING_ACTIVATION or FORCE_PASSWORD_RESET
// becomes ACTIVE.
func (s *Service) SetCredential(ctx context.Context, principal *models.Principal, current, next string) (*models.Principal, error) {
	if next == "" {
		return nil, apperr.Invalid("new_credential", "must not be empty")
	}
	if len(next) > credential.MaxLength {
		return nil, apperr.Invalid("new_credential", "must be at most %d bytes", credential.MaxLength)
	}
	if next == current {
		return nil, apperr.Invalid("new_credential", "must differ from the current credential")
	}

	var updated *models.Principal
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPrincipal(ctx, principal.ID)
		if err != nil {
			return fmt.Errorf("load principal: %w", err)
		}
		if err := s.credentials.Verify(p.CredentialHash, current); err != nil {
			return err
		}

		status := p.AccountStatus
		if status != models.StatusActive {
			status, err = lifecycle.Next(p.AccountStatus, lifecycle.CredentialSet)
			if err != nil {
				return err
			}
		}

		hash, err := s.credentials.Hash(next)
		if err != nil {
			return err
		}
		if err := tx.SetCredentialHash(ctx, p.ID, hash); err != nil {
			return fmt.Errorf("bind credential: %w", err)
		}
		if status != p.AccountStatus {
			if err := tx.UpdatePrincipalStatus(ctx, p.ID, p.AccountStatus, status); err != nil {
				return err
			}
		}
		p.AccountStatus = status
		p.CredentialHash = hash
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventCredentialSet,
		ActorID:  updated.ID,
		TargetID: updated.ID,
		TenantID: updated.TenantID,
	})
	return updated, nil
}

// StaffUpdate holds the editable fields of a STAFF principal. Nil fields are left unchanged.
type StaffUpdate struct {
	FirstName   *string
	LastName    *string
	Permissions *[]models.Permission
}

// UpdateStaff edits the profile of a STAFF principal and, when Permissions
// is set, replaces their grants wholesale.
func (s *Service) UpdateStaff(ctx context.Context, actor *models.Principal, targetID uuid.UUID, upd StaffUpdate) (*models.TenantUser, error) {
	if upd.Permissions != nil {
		if err := validatePermissions(*upd.Permissions); err != nil {
			return nil, err
		}
	}

	var result *models.TenantUser
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		target, err := lockTarget(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if err := s.engine.CanEditStaff(actor, target); err != nil {
			return err
		}

		if upd.FirstName != nil || upd.LastName != nil {
			first, last := target.FirstName, target.LastName
			if upd.FirstName != nil {
				if first, err = validateName("first_name", *upd.FirstName); err != nil {
					return err
				}
			}
			if upd.LastName != nil {
				if last, err = validateName("last_name", *upd.LastName); err != nil {
					return err
				}
			}
			if err := tx.UpdatePrincipalProfile(ctx, target.ID, first, last); err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			target.FirstName, target.LastName = first, last
		}

		if upd.Permissions != nil {
			if err := tx.ReplaceGrants(ctx, target.ID, *target.TenantID, *upd.Permissions); err != nil {
				return fmt.Errorf("replace grants: %w", err)
			}
		}

		grants, err := tx.ListGrants(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("list grants: %w", err)
		}
		result = &models.TenantUser{Principal: *target, Permissions: grants}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventStaffUpdated,
		ActorID:  actor.ID,
		TargetID: result.ID,
		TenantID: result.TenantID,
		Details:  map[string]string{"grants_replaced": fmt.Sprint(upd.Permissions != nil)},
	})
	return result, nil
}

// ListTenantUsers returns every principal of the tenant with their grants.
func (s *Service) ListTenantUsers(ctx context.Context, actor *models.Principal, tenantID uuid.UUID) ([]*models.TenantUser, error) {
	if err := s.engine.CanManageTenant(actor, tenantID); err != nil {
		return nil, err
	}
	users, err := s.store.ListTenantUsers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}
	return users, nil
}

// lockTarget loads the target, locks its tenant and re-reads the target
// under the lock so the caller decides on current state.
func lockTarget(ctx context.Context, tx store.Tx, id uuid.UUID) (*models.Principal, error) {
	target, err := tx.GetPrincipal(ctx, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	if target.TenantID == nil {
		return target, nil
	}
	if _, err := tx.LockTenant(ctx, *target.TenantID); err != nil {
		return nil, fmt.Errorf("lock tenant: %w", err)
	}
	target, err = tx.GetPrincipal(ctx, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	return target, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Invalid(field, "must not be empty")
	}
	if len(value) > maxNameLength {
		return "", apperr.Invalid(field, "must be at most %d characters", maxNameLength)
	}
	return value, nil
}

func validatePermissions(perms []models.Permission) error {
	seen := make(map[models.Permission]bool, len(perms))
	for _, p := range perms {
		if !p.Valid() {
			return apperr.Invalid("permissions", "unknown permission %q", p)
		}
		if seen[p] {
			return apperr.Invalid("permissions", "duplicate permission %q", p)
		}
		seen[p] = true
	}
	return nil
}
