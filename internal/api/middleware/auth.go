package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/identity"
	"github.com/kiranshivaraju/inventomatic/internal/lifecycle"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

// PrincipalResolver turns a bearer token into the stored principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, bearerToken string) (*models.Principal, error)
}

// Auth provides authentication middleware.
type Auth struct {
	resolver PrincipalResolver
}

// NewAuth creates a new Auth middleware.
func NewAuth(resolver PrincipalResolver) *Auth {
	return &Auth{resolver: resolver}
}

// Authenticate resolves the Bearer token to a principal on every request and
// sets it in the request context. Role, status and tenant come from the store,
// never from the token.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Missing or invalid Authorization header", nil)
			return
		}

		p, err := a.resolver.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrUnauthenticated) {
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHENTICATED", "Invalid or expired token", nil)
				return
			}
			slog.Error("resolve principal", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to authenticate request", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
	})
}

// RequireActive blocks principals that still have to set a credential
// (PENDING_ACTIVATION or FORCE_PASSWORD_RESET). Routes that let them do so
// must be mounted outside of it.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Missing principal", nil)
			return
		}
		if lifecycle.RequiresCredentialChange(p) {
			response.Error(w, http.StatusForbidden,
				"CREDENTIAL_CHANGE_REQUIRED", "A new credential must be set before continuing", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
