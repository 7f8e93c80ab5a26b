package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// TenantManager administers tenants and their locations.
type TenantManager interface {
	CreateTenant(ctx context.Context, actor *models.Principal, name string) (*models.Tenant, error)
	ListTenants(ctx context.Context, actor *models.Principal) ([]*models.TenantSummary, error)
	GetTenant(ctx context.Context, actor *models.Principal, tenantID uuid.UUID) (*models.Tenant, error)
	RenameTenant(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, name string) (*models.Tenant, error)
	SetTenantActive(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, active bool) (*models.Tenant, error)
	ListLocations(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error)
	CreateLocation(ctx context.Context, actor *models.Principal, tenantID uuid.UUID, name string) (*models.Location, error)
	ArchiveLocation(ctx context.Context, actor *models.Principal, locationID uuid.UUID) (*models.Location, error)
}

type nameRequest struct {
	Name string `json:"name"`
}

// NewCreateTenantHandler returns an http.HandlerFunc for POST /api/v1/admin/tenants.
func NewCreateTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		var req nameRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		tenant, err := svc.CreateTenant(r.Context(), p, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, tenant)
	}
}

// NewListTenantsHandler returns an http.HandlerFunc for GET /api/v1/admin/tenants.
func NewListTenantsHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}

		tenants, err := svc.ListTenants(r.Context(), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if tenants == nil {
			tenants = []*models.TenantSummary{}
		}
		response.JSON(w, tenants)
	}
}

// NewSetTenantStatusHandler returns an http.HandlerFunc for POST /api/v1/admin/tenants/{tenantID}/status.
func NewSetTenantStatusHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := uuidParam(w, r, "tenantID")
		if !ok {
			return
		}
		var req struct {
			IsActive *bool `json:"is_active"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.IsActive == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "is_active is required", nil)
			return
		}

		tenant, err := svc.SetTenantActive(r.Context(), p, tenantID, *req.IsActive)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewGetTenantHandler returns an http.HandlerFunc for GET /api/v1/tenant.
func NewGetTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := tenantScope(w, r, p)
		if !ok {
			return
		}

		tenant, err := svc.GetTenant(r.Context(), p, tenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewRenameTenantHandler returns an http.HandlerFunc for PATCH /api/v1/tenant.
func NewRenameTenantHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := tenantScope(w, r, p)
		if !ok {
			return
		}
		var req nameRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		tenant, err := svc.RenameTenant(r.Context(), p, tenantID, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewListLocationsHandler returns an http.HandlerFunc for GET /api/v1/locations.
func NewListLocationsHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := tenantScope(w, r, p)
		if !ok {
			return
		}
		includeArchived := false
		if raw := r.URL.Query().Get("include_archived"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "include_archived must be a boolean", nil)
				return
			}
			includeArchived = v
		}

		locations, err := svc.ListLocations(r.Context(), p, tenantID, includeArchived)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if locations == nil {
			locations = []*models.Location{}
		}
		response.JSON(w, locations)
	}
}

// NewCreateLocationHandler returns an http.HandlerFunc for POST /api/v1/locations.
func NewCreateLocationHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		tenantID, ok := tenantScope(w, r, p)
		if !ok {
			return
		}
		var req nameRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		location, err := svc.CreateLocation(r.Context(), p, tenantID, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, location)
	}
}

// NewArchiveLocationHandler returns an http.HandlerFunc for POST /api/v1/locations/{locationID}/archive.
func NewArchiveLocationHandler(svc TenantManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		locationID, ok := uuidParam(w, r, "locationID")
		if !ok {
			return
		}

		location, err := svc.ArchiveLocation(r.Context(), p, locationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, location)
	}
}
