package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/inventomatic/internal/api/middleware"
	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/apperr"
	"github.com/kiranshivaraju/inventomatic/internal/authz"
	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/kiranshivaraju/inventomatic/internal/identity"
	"github.com/kiranshivaraju/inventomatic/internal/lifecycle"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

const maxBodyBytes = 1 << 20

// writeError maps a service error onto the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *authz.Error
	var invalid *apperr.ValidationError

	switch {
	case errors.As(err, &denied):
		status := http.StatusForbidden
		if denied.Reason == authz.ReasonLastManager {
			status = http.StatusConflict
		}
		response.Error(w, status, string(denied.Reason), denied.Message, nil)
	case errors.As(err, &invalid):
		var details any
		if invalid.Field != "" {
			details = map[string]string{"field": invalid.Field}
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", invalid.Error(), details)
	case errors.Is(err, identity.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
	case errors.Is(err, credential.ErrMismatch):
		response.Error(w, http.StatusBadRequest, "INVALID_CREDENTIAL", "Current credential is incorrect", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, store.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource was modified concurrently, retry the request", nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func actor(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, ok := mw.GetPrincipal(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing principal", nil)
		return nil, false
	}
	return p, true
}

// tenantScope is the tenant a tenant-scoped route acts on: the tenant_id
// query parameter when given (ADMIN has no tenant of its own), otherwise the
// actor's tenant. Whether the actor may act there is the service's decision.
func tenantScope(w http.ResponseWriter, r *http.Request, p *models.Principal) (uuid.UUID, bool) {
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant_id must be a valid UUID", nil)
			return uuid.Nil, false
		}
		return id, true
	}
	if p.TenantID == nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "tenant_id is required", nil)
		return uuid.Nil, false
	}
	return *p.TenantID, true
}
