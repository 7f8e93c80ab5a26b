package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/account"
	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/provisioning"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// Provisioner creates principals.
type Provisioner interface {
	Provision(ctx context.Context, actor *models.Principal, req provisioning.Request) (*provisioning.Result, error)
	ProvisionManager(ctx context.Context, actor *models.Principal, req provisioning.Request) (*provisioning.Result, error)
}

// UserManager mutates existing principals.
type UserManager interface {
	ChangeRole(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role) (*models.Principal, error)
	ManagerChangeRole(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role) (*models.Principal, error)
	ResetPassword(ctx context.Context, actor *models.Principal, targetID uuid.UUID) (string, error)
	SetAccountStatus(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newStatus models.AccountStatus) (*models.Principal, error)
	UpdateStaff(ctx context.Context, actor *models.Principal, targetID uuid.UUID, upd account.StaffUpdate) (*models.TenantUser, error)
	ListTenantUsers(ctx context.Context, actor *models.Principal, tenantID uuid.UUID) ([]*models.TenantUser, error)
}

type provisionRequest struct {
	TenantID   *uuid.UUID  `json:"tenant_id"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	ExternalID string      `json:"external_id"`
	Role       models.Role `json:"role"`
	LocationID *uuid.UUID  `json:"location_id"`
}

func (p provisionRequest) toRequest(tenantID uuid.UUID) provisioning.Request {
	return provisioning.Request{
		TenantID:   tenantID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		ExternalID: p.ExternalID,
		Role:       p.Role,
		LocationID: p.LocationID,
	}
}

// NewProvisionUserHandler returns an http.HandlerFunc for POST /api/v1/users.
// The principal is created in the actor's own tenant.
func NewProvisionUserHandler(svc Provisioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		var req provisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if p.TenantID == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Use /api/v1/admin/managers to provision into a tenant", nil)
			return
		}
		if req.Role == "" {
			req.Role = models.RoleStaff
		}

		result, err := svc.Provision(r.Context(), p, req.toRequest(*p.TenantID))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, result)
	}
}

// NewProvisionManagerHandler returns an http.HandlerFunc for POST /api/v1/admin/managers.
func NewProvisionManagerHandler(svc Provisioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		var req provisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.TenantID == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant_id is required", nil)
			return
		}

		result, err := svc.ProvisionManager(r.Context(), p, req.toRequest(*req.TenantID))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, result)
	}
}

// NewListUsersHandler returns an http.HandlerFunc for GET /api/v1/users.
func NewListUsersHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := tenantScope(w, r, p)
		if !ok {
			return
		}

		users, err := svc.ListTenantUsers(r.Context(), p, tenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if users == nil {
			users = []*models.TenantUser{}
		}
		response.JSON(w, users)
	}
}

// NewUpdateStaffHandler returns an http.HandlerFunc for PATCH /api/v1/users/{userID}.
func NewUpdateStaffHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		targetID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}
		var req struct {
			FirstName   *string              `json:"first_name"`
			LastName    *string              `json:"last_name"`
			Permissions *[]models.Permission `json:"permissions"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := svc.UpdateStaff(r.Context(), p, targetID, account.StaffUpdate{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Permissions: req.Permissions,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, user)
	}
}

type roleChanger func(ctx context.Context, actor *models.Principal, targetID uuid.UUID, newRole models.Role) (*models.Principal, error)

// NewChangeRoleHandler returns an http.HandlerFunc for POST /api/v1/admin/users/{userID}/role.
func NewChangeRoleHandler(svc UserManager) http.HandlerFunc {
	return roleHandler(svc.ChangeRole)
}

// NewManagerChangeRoleHandler returns an http.HandlerFunc for POST /api/v1/users/{userID}/role.
func NewManagerChangeRoleHandler(svc UserManager) http.HandlerFunc {
	return roleHandler(svc.ManagerChangeRole)
}

func roleHandler(change roleChanger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		targetID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}
		var req struct {
			Role models.Role `json:"role"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		updated, err := change(r.Context(), p, targetID, req.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewResetPasswordHandler returns an http.HandlerFunc for POST /api/v1/users/{userID}/reset-password.
// The temporary credential appears in this response only.
func NewResetPasswordHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		targetID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}

		plain, err := svc.ResetPassword(r.Context(), p, targetID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]string{
			"principal_id":         targetID.String(),
			"temporary_credential": plain,
		})
	}
}

// NewSetStatusHandler returns an http.HandlerFunc for POST /api/v1/users/{userID}/status.
func NewSetStatusHandler(svc UserManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		targetID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}
		var req struct {
			Status models.AccountStatus `json:"status"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		updated, err := svc.SetAccountStatus(r.Context(), p, targetID, req.Status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, updated)
	}
}
