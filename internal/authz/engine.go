// Package authz decides who may provision, promote, demote, deactivate or
// reset the credentials of whom.
//
// Every decision is a pure function of the actor, the target and the tenant
// state supplied by the caller; nothing is read from or written to the store.
// Structural checks that need a precise denial reason run in Go in a fixed
// order (tenant isolation, self action, no-op); the remaining role matrix is
// evaluated by the embedded Cedar policy set; the last-manager guard runs last.
package authz

import (
	"log/slog"

	"github.com/cedar-policy/cedar-go"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// Recorder observes every decision the engine makes.
type Recorder interface {
	ObserveDecision(action string, reason string)
}

// Config contains options for the Engine.
type Config struct {
	// Logger for decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Recorder receives one observation per decision. Optional.
	Recorder Recorder

	// PolicyBytes replaces the embedded policies.cedar (for testing).
	PolicyBytes []byte
}

// Engine evaluates authorization decisions. It is immutable and safe for concurrent use.
type Engine struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
	recorder Recorder
}

// NewEngine parses the policy set and returns a ready Engine.
func NewEngine(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	data := cfg.PolicyBytes
	if data == nil {
		data = policiesContent
	}

	ps, err := parsePolicies(data)
	if err != nil {
		return nil, err
	}

	return &Engine{policies: ps, logger: logger, recorder: cfg.Recorder}, nil
}

// CanProvision reports whether actor may create a principal with newRole in
// tenantID, which currently has managerCount MANAGERs.
func (e *Engine) CanProvision(actor *models.Principal, newRole models.Role, tenantID uuid.UUID, managerCount int) error {
	return e.observe(ActionProvision, func() error {
		if err := assertActorInTenant(actor, tenantID); err != nil {
			return err
		}
		if !newRole.Valid() || newRole == models.RoleAdmin {
			return deny(ReasonForbidden, "role %q cannot be provisioned", newRole)
		}
		return e.evaluate(request{
			action:   ActionProvision,
			actor:    actor,
			tenantID: tenantID,
			context: cedar.RecordMap{
				"new_role":      cedar.String(string(newRole)),
				"manager_count": cedar.Long(int64(managerCount)),
			},
		}, "%s may not provision a %s in this tenant", actor.Role, newRole)
	})
}

// CanChangeRole is the ADMIN entry point for role changes. managerCount is
// the number of MANAGERs in the target's tenant, read under the tenant lock.
func (e *Engine) CanChangeRole(actor, target *models.Principal, newRole models.Role, managerCount int) error {
	return e.observe(ActionChangeRole, func() error {
		return e.checkRoleChange(ActionChangeRole, actor, target, newRole, managerCount)
	})
}

// CanManagerChangeStaffRole is the narrower department-level entry point: a
// MANAGER changing the role of a non-MANAGER in their own tenant.
func (e *Engine) CanManagerChangeStaffRole(actor, target *models.Principal, newRole models.Role, managerCount int) error {
	return e.observe(ActionManagerChangeRole, func() error {
		return e.checkRoleChange(ActionManagerChangeRole, actor, target, newRole, managerCount)
	})
}

func (e *Engine) checkRoleChange(action string, actor, target *models.Principal, newRole models.Role, managerCount int) error {
	if err := AssertTenantIsolation(actor, target); err != nil {
		return err
	}
	if target.Role == newRole {
		return deny(ReasonNoOp, "principal already has role %s", newRole)
	}
	if actor.ID == target.ID {
		return deny(ReasonSelfAction, "cannot change own role")
	}
	err := e.evaluate(request{
		action: action,
		actor:  actor,
		target: target,
		context: cedar.RecordMap{
			"new_role": cedar.String(string(newRole)),
		},
	}, "%s may not change a %s to %s", actor.Role, target.Role, newRole)
	if err != nil {
		return err
	}
	if target.Role == models.RoleManager && newRole != models.RoleManager && managerCount <= 1 {
		return deny(ReasonLastManager, "cannot demote the last manager of the tenant")
	}
	return nil
}

// CanResetPassword allows ADMIN→MANAGER and MANAGER→STAFF within the same tenant.
func (e *Engine) CanResetPassword(actor, target *models.Principal) error {
	return e.observe(ActionResetPassword, func() error {
		if err := AssertTenantIsolation(actor, target); err != nil {
			return err
		}
		if actor.ID == target.ID {
			return deny(ReasonSelfAction, "cannot reset own credential")
		}
		return e.evaluate(request{action: ActionResetPassword, actor: actor, target: target},
			"%s may not reset the credential of a %s", actor.Role, target.Role)
	})
}

// CanChangeAccountStatus allows a MANAGER to activate or deactivate a
// non-MANAGER of the same tenant. The actor must share the target's tenant,
// so an ADMIN is denied with CROSS_TENANT.
func (e *Engine) CanChangeAccountStatus(actor, target *models.Principal, newStatus models.AccountStatus) error {
	return e.observe(ActionChangeStatus, func() error {
		if err := AssertTenantIsolation(actor, target); err != nil {
			return err
		}
		if actor.TenantID == nil || !target.InTenant(*actor.TenantID) {
			return deny(ReasonCrossTenant, "actor does not belong to the target's tenant")
		}
		if newStatus != models.StatusActive && newStatus != models.StatusInactive {
			return deny(ReasonForbidden, "status %s cannot be set directly", newStatus)
		}
		if actor.ID == target.ID {
			return deny(ReasonSelfAction, "cannot change own account status")
		}
		if target.AccountStatus == newStatus {
			return deny(ReasonNoOp, "account is already %s", newStatus)
		}
		return e.evaluate(request{
			action: ActionChangeStatus,
			actor:  actor,
			target: target,
			context: cedar.RecordMap{
				"new_status": cedar.String(string(newStatus)),
			},
		}, "%s may not set a %s to %s", actor.Role, target.Role, newStatus)
	})
}

// CanEditStaff allows a MANAGER to edit the profile and grants of STAFF in
// the same tenant.
func (e *Engine) CanEditStaff(actor, target *models.Principal) error {
	return e.observe(ActionEditStaff, func() error {
		if err := AssertTenantIsolation(actor, target); err != nil {
			return err
		}
		if actor.ID == target.ID {
			return deny(ReasonSelfAction, "cannot edit own account")
		}
		return e.evaluate(request{action: ActionEditStaff, actor: actor, target: target},
			"%s may not edit a %s", actor.Role, target.Role)
	})
}

// CanAdministerTenants allows only ADMIN to create and list tenants.
func (e *Engine) CanAdministerTenants(actor *models.Principal) error {
	return e.observe(ActionAdministerTenants, func() error {
		if actor == nil || !tenantEstablished(actor) {
			return deny(ReasonCrossTenant, "actor tenant cannot be established")
		}
		return e.evaluate(request{action: ActionAdministerTenants, actor: actor},
			"only an admin may administer tenants")
	})
}

// CanViewTenant allows ADMIN and every member of the tenant.
func (e *Engine) CanViewTenant(actor *models.Principal, tenantID uuid.UUID) error {
	return e.observe(ActionViewTenant, func() error {
		if err := assertActorInTenant(actor, tenantID); err != nil {
			return err
		}
		return e.evaluate(request{action: ActionViewTenant, actor: actor, tenantID: tenantID},
			"%s may not view this tenant", actor.Role)
	})
}

// CanManageTenant allows ADMIN for any tenant and MANAGER for their own.
func (e *Engine) CanManageTenant(actor *models.Principal, tenantID uuid.UUID) error {
	return e.observe(ActionManageTenant, func() error {
		if err := assertActorInTenant(actor, tenantID); err != nil {
			return err
		}
		return e.evaluate(request{action: ActionManageTenant, actor: actor, tenantID: tenantID},
			"%s may not manage this tenant", actor.Role)
	})
}

// CanToggleTenant allows only ADMIN to activate or deactivate a tenant.
func (e *Engine) CanToggleTenant(actor *models.Principal, tenantID uuid.UUID) error {
	return e.observe(ActionToggleTenant, func() error {
		if err := assertActorInTenant(actor, tenantID); err != nil {
			return err
		}
		return e.evaluate(request{action: ActionToggleTenant, actor: actor, tenantID: tenantID},
			"only an admin may change tenant status")
	})
}

// HasPermission reports whether p may perform perm inside tenantID. MANAGERs
// hold every domain permission of their tenant; STAFF only what grants lists;
// ADMIN holds none.
func (e *Engine) HasPermission(p *models.Principal, perm models.Permission, tenantID uuid.UUID, grants []models.Permission) bool {
	if !perm.Valid() {
		return false
	}
	err := e.observe(ActionUsePermission, func() error {
		if p == nil {
			return deny(ReasonCrossTenant, "principal unknown")
		}
		if p.Role == models.RoleAdmin {
			return deny(ReasonForbidden, "admin holds no tenant permissions")
		}
		if err := assertActorInTenant(p, tenantID); err != nil {
			return err
		}
		return e.evaluate(request{
			action:   ActionUsePermission,
			actor:    p,
			grants:   grants,
			tenantID: tenantID,
			context: cedar.RecordMap{
				"permission": cedar.String(string(perm)),
			},
		}, "permission %s not granted", perm)
	})
	return err == nil
}

// AssertTenantIsolation fails closed with CROSS_TENANT when either side's
// tenant cannot be established or a non-ADMIN actor targets another tenant.
func AssertTenantIsolation(actor, target *models.Principal) error {
	if actor == nil || target == nil {
		return deny(ReasonCrossTenant, "principal unknown")
	}
	if !tenantEstablished(actor) {
		return deny(ReasonCrossTenant, "actor tenant cannot be established")
	}
	if !tenantEstablished(target) {
		return deny(ReasonCrossTenant, "target tenant cannot be established")
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if target.TenantID == nil || *target.TenantID != *actor.TenantID {
		return deny(ReasonCrossTenant, "target belongs to another tenant")
	}
	return nil
}

func assertActorInTenant(actor *models.Principal, tenantID uuid.UUID) error {
	if actor == nil || !tenantEstablished(actor) {
		return deny(ReasonCrossTenant, "actor tenant cannot be established")
	}
	if tenantID == uuid.Nil {
		return deny(ReasonCrossTenant, "tenant cannot be established")
	}
	if actor.Role != models.RoleAdmin && !actor.InTenant(tenantID) {
		return deny(ReasonCrossTenant, "tenant is not the actor's tenant")
	}
	return nil
}

// tenantEstablished: ADMIN is tenant-less, every other role has exactly one tenant.
func tenantEstablished(p *models.Principal) bool {
	switch p.Role {
	case models.RoleAdmin:
		return p.TenantID == nil
	case models.RoleManager, models.RoleStaff:
		return p.TenantID != nil && *p.TenantID != uuid.Nil
	}
	return false
}

func (e *Engine) evaluate(req request, format string, args ...any) error {
	entities, cedarReq := req.build()
	decision, diag := cedar.Authorize(e.policies, entities, cedarReq)
	if len(diag.Errors) > 0 {
		e.logger.Warn("policy evaluation error",
			"action", req.action,
			"principal_id", req.actor.ID,
			"errors", len(diag.Errors),
			"first_error", diag.Errors[0].Message,
		)
	}
	if decision != cedar.Allow {
		return deny(ReasonForbidden, format, args...)
	}
	return nil
}

func (e *Engine) observe(action string, check func() error) error {
	err := check()
	reason := "ALLOWED"
	if err != nil {
		if ae, ok := err.(*Error); ok {
			reason = string(ae.Reason)
		}
		e.logger.Debug("authorization denied", "action", action, "reason", reason, "detail", err.Error())
	}
	if e.recorder != nil {
		e.recorder.ObserveDecision(action, reason)
	}
	return err
}
