package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/inventomatic/internal/api/middleware"
	"github.com/kiranshivaraju/inventomatic/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Requests  mw.RequestObserver

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	LoginHandler         http.HandlerFunc
	MeHandler            http.HandlerFunc
	SetCredentialHandler http.HandlerFunc

	CreateTenantHandler    http.HandlerFunc
	ListTenantsHandler     http.HandlerFunc
	SetTenantStatusHandler http.HandlerFunc
	ProvisionManager       http.HandlerFunc
	AdminChangeRole        http.HandlerFunc

	ProvisionUser     http.HandlerFunc
	ListUsers         http.HandlerFunc
	UpdateStaff       http.HandlerFunc
	ManagerChangeRole http.HandlerFunc
	ResetPassword     http.HandlerFunc
	SetAccountStatus  http.HandlerFunc

	GetTenant       http.HandlerFunc
	RenameTenant    http.HandlerFunc
	ListLocations   http.HandlerFunc
	CreateLocation  http.HandlerFunc
	ArchiveLocation http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Requests))
	r.Use(mw.Recovery)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.With(deps.RateLimit.LimitLogin).Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		// Reachable while a credential change is pending
		r.Get("/api/v1/me", orNotImplemented(deps.MeHandler))
		r.Post("/api/v1/me/credential", orNotImplemented(deps.SetCredentialHandler))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireActive)

			r.Route("/api/v1/admin", func(r chi.Router) {
				r.Post("/tenants", orNotImplemented(deps.CreateTenantHandler))
				r.Get("/tenants", orNotImplemented(deps.ListTenantsHandler))
				r.Post("/tenants/{tenantID}/status", orNotImplemented(deps.SetTenantStatusHandler))
				r.Post("/managers", orNotImplemented(deps.ProvisionManager))
				r.Post("/users/{userID}/role", orNotImplemented(deps.AdminChangeRole))
			})

			r.Post("/api/v1/users", orNotImplemented(deps.ProvisionUser))
			r.Get("/api/v1/users", orNotImplemented(deps.ListUsers))
			r.Patch("/api/v1/users/{userID}", orNotImplemented(deps.UpdateStaff))
			r.Post("/api/v1/users/{userID}/role", orNotImplemented(deps.ManagerChangeRole))
			r.Post("/api/v1/users/{userID}/reset-password", orNotImplemented(deps.ResetPassword))
			r.Post("/api/v1/users/{userID}/status", orNotImplemented(deps.SetAccountStatus))

			r.Get("/api/v1/tenant", orNotImplemented(deps.GetTenant))
			r.Patch("/api/v1/tenant", orNotImplemented(deps.RenameTenant))
			r.Get("/api/v1/locations", orNotImplemented(deps.ListLocations))
			r.Post("/api/v1/locations", orNotImplemented(deps.CreateLocation))
			r.Post("/api/v1/locations/{locationID}/archive", orNotImplemented(deps.ArchiveLocation))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
