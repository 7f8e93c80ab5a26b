package authz

import (
	_ "embed"
	"fmt"

	"github.com/cedar-policy/cedar-go"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

//go:embed policies.cedar
var policiesContent []byte

// Action names evaluated by policies.cedar.
const (
	ActionProvision         = "provision"
	ActionChangeRole        = "change_role"
	ActionManagerChangeRole = "manager_change_role"
	ActionResetPassword     = "reset_password"
	ActionChangeStatus      = "change_status"
	ActionEditStaff         = "edit_staff"
	ActionAdministerTenants = "administer_tenants"
	ActionViewTenant        = "view_tenant"
	ActionManageTenant      = "manage_tenant"
	ActionToggleTenant      = "toggle_tenant"
	ActionUsePermission     = "use_permission"
)

const (
	userType   = cedar.EntityType("Inventomatic::User")
	tenantType = cedar.EntityType("Inventomatic::Tenant")
	actionType = cedar.EntityType("Inventomatic::Action")
)

func parsePolicies(data []byte) (*cedar.PolicySet, error) {
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", data)
	if err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	return ps, nil
}

func tenantAttr(id *uuid.UUID) cedar.String {
	if id == nil {
		return cedar.String("")
	}
	return cedar.String(id.String())
}

func userUID(p *models.Principal) cedar.EntityUID {
	return cedar.NewEntityUID(userType, cedar.String(p.ID.String()))
}

func userEntity(p *models.Principal, grants []models.Permission) cedar.Entity {
	values := make([]cedar.Value, 0, len(grants))
	for _, g := range grants {
		values = append(values, cedar.String(string(g)))
	}
	return cedar.Entity{
		UID:     userUID(p),
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"role":   cedar.String(string(p.Role)),
			"tenant": tenantAttr(p.TenantID),
			"status": cedar.String(string(p.AccountStatus)),
			"grants": cedar.NewSet(values...),
		}),
	}
}

func tenantEntity(id uuid.UUID) cedar.Entity {
	return cedar.Entity{
		UID:     cedar.NewEntityUID(tenantType, cedar.String(id.String())),
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"tenant": cedar.String(id.String()),
		}),
	}
}

// request describes one policy evaluation.
type request struct {
	action   string
	actor    *models.Principal
	grants   []models.Permission
	target   *models.Principal
	tenantID uuid.UUID
	context  cedar.RecordMap
}

func (r request) build() (cedar.EntityMap, cedar.Request) {
	entities := cedar.EntityMap{}
	actor := userEntity(r.actor, r.grants)
	entities[actor.UID] = actor

	var resource cedar.EntityUID
	if r.target != nil {
		target := userEntity(r.target, nil)
		if target.UID != actor.UID {
			entities[target.UID] = target
		}
		resource = target.UID
	} else {
		tenant := tenantEntity(r.tenantID)
		entities[tenant.UID] = tenant
		resource = tenant.UID
	}

	ctx := r.context
	if ctx == nil {
		ctx = cedar.RecordMap{}
	}
	return entities, cedar.Request{
		Principal: actor.UID,
		Action:    cedar.NewEntityUID(actionType, cedar.String(r.action)),
		Resource:  resource,
		Context:   cedar.NewRecord(ctx),
	}
}
