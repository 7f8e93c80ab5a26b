// Package main is the entrypoint for the Inventomatic access API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/inventomatic/internal/account"
	"github.com/kiranshivaraju/inventomatic/internal/api"
	"github.com/kiranshivaraju/inventomatic/internal/api/handler"
	mw "github.com/kiranshivaraju/inventomatic/internal/api/middleware"
	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/audit"
	"github.com/kiranshivaraju/inventomatic/internal/authz"
	"github.com/kiranshivaraju/inventomatic/internal/cache"
	"github.com/kiranshivaraju/inventomatic/internal/config"
	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/kiranshivaraju/inventomatic/internal/identity"
	"github.com/kiranshivaraju/inventomatic/internal/metrics"
	"github.com/kiranshivaraju/inventomatic/internal/provisioning"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	app, err := newApp(cfg, store.NewPostgresStore(pool), redisCache, prometheus.DefaultRegisterer, slog.Default())
	if err != nil {
		return err
	}

	if cfg.Bootstrap.Enabled() {
		created, err := app.provisioning.BootstrapAdmin(ctx, cfg.Bootstrap.AdminExternalID, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		slog.Info("bootstrap admin checked", "external_id", cfg.Bootstrap.AdminExternalID, "created", created)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the wired service graph behind the HTTP server.
type app struct {
	router       http.Handler
	provisioning *provisioning.Service
}

func newApp(cfg *config.Config, s store.Store, counter cache.Counter, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	m := metrics.New(reg)

	engine, err := authz.NewEngine(authz.Config{Logger: logger, Recorder: m})
	if err != nil {
		return nil, fmt.Errorf("create authz engine: %w", err)
	}

	issuer := credential.NewIssuer(cfg.Auth.BcryptCost)
	tokens := identity.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	resolver := identity.NewResolver(s, tokens, issuer, m)
	auditLog := audit.NewLogger(logger)

	accounts := account.NewService(s, engine, issuer, auditLog)
	provisioner := provisioning.NewService(s, engine, issuer, auditLog, m)

	var metricsHandler http.Handler
	if g, ok := reg.(prometheus.Gatherer); ok {
		metricsHandler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(resolver),
		RateLimit: mw.NewRateLimit(counter, cfg.RateLimit.PerMinute),
		Requests:  m,

		HealthHandler:  healthHandler(s, counter),
		MetricsHandler: metricsHandler,

		LoginHandler:         handler.NewLoginHandler(resolver),
		MeHandler:            handler.NewMeHandler(),
		SetCredentialHandler: handler.NewSetCredentialHandler(accounts),

		CreateTenantHandler:    handler.NewCreateTenantHandler(accounts),
		ListTenantsHandler:     handler.NewListTenantsHandler(accounts),
		SetTenantStatusHandler: handler.NewSetTenantStatusHandler(accounts),
		ProvisionManager:       handler.NewProvisionManagerHandler(provisioner),
		AdminChangeRole:        handler.NewChangeRoleHandler(accounts),

		ProvisionUser:     handler.NewProvisionUserHandler(provisioner),
		ListUsers:         handler.NewListUsersHandler(accounts),
		UpdateStaff:       handler.NewUpdateStaffHandler(accounts),
		ManagerChangeRole: handler.NewManagerChangeRoleHandler(accounts),
		ResetPassword:     handler.NewResetPasswordHandler(accounts),
		SetAccountStatus:  handler.NewSetStatusHandler(accounts),

		GetTenant:       handler.NewGetTenantHandler(accounts),
		RenameTenant:    handler.NewRenameTenantHandler(accounts),
		ListLocations:   handler.NewListLocationsHandler(accounts),
		CreateLocation:  handler.NewCreateLocationHandler(accounts),
		ArchiveLocation: handler.NewArchiveLocationHandler(accounts),
	})

	return &app{router: router, provisioning: provisioner}, nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Counter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
