package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/identity"
	"github.com/kiranshivaraju/inventomatic/internal/lifecycle"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// Authenticator exchanges a login for a token.
type Authenticator interface {
	Login(ctx context.Context, externalID, password string) (*identity.LoginResult, error)
}

// CredentialSetter lets a principal replace their own credential.
type CredentialSetter interface {
	SetCredential(ctx context.Context, p *models.Principal, current, next string) (*models.Principal, error)
}

type meResponse struct {
	models.Principal
	RequiresCredentialChange bool `json:"requires_credential_change"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/auth/login.
func NewLoginHandler(auth Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ExternalID string `json:"external_id"`
			Password   string `json:"password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.ExternalID == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "external_id and password are required", nil)
			return
		}

		result, err := auth.Login(r.Context(), req.ExternalID, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrTenantInactive):
				response.Error(w, http.StatusUnauthorized, "TENANT_INACTIVE", "Your department is inactive", nil)
			case errors.Is(err, identity.ErrAccountInactive):
				response.Error(w, http.StatusUnauthorized, "ACCOUNT_INACTIVE", "Your account is inactive", nil)
			case errors.Is(err, identity.ErrUnauthenticated):
				response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid external id or password", nil)
			default:
				writeError(w, r, err)
			}
			return
		}

		response.JSON(w, struct {
			*identity.LoginResult
			RequiresCredentialChange bool `json:"requires_credential_change"`
		}{result, lifecycle.RequiresCredentialChange(result.Principal)})
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/v1/me.
func NewMeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		response.JSON(w, meResponse{Principal: *p, RequiresCredentialChange: lifecycle.RequiresCredentialChange(p)})
	}
}

// NewSetCredentialHandler returns an http.HandlerFunc for POST /api/v1/me/credential.
func NewSetCredentialHandler(svc CredentialSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := actor(w, r)
		if !ok {
			return
		}
		var req struct {
			CurrentCredential string `json:"current_credential"`
			NewCredential     string `json:"new_credential"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		updated, err := svc.SetCredential(r.Context(), p, req.CurrentCredential, req.NewCredential)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, meResponse{Principal: *updated, RequiresCredentialChange: false})
	}
}
