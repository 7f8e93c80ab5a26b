package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

type contextKey string

const principalKey contextKey = "principal"

// SetPrincipal stores the authenticated principal in ctx.
func SetPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal set by Authenticate.
func GetPrincipal(r *http.Request) (*models.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(*models.Principal)
	return p, ok && p != nil
}
