// Package provisioning creates new principals with a one-time temporary
// credential. A provision either commits the principal together with its
// credential hash or leaves no trace.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/apperr"
	"github.com/kiranshivaraju/inventomatic/internal/audit"
	"github.com/kiranshivaraju/inventomatic/internal/authz"
	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

const maxNameLength = 100

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Observer is notified of every committed provision.
type Observer interface {
	ObserveProvisioned(role string)
}

// Request describes the principal to create.
type Request struct {
	TenantID   uuid.UUID
	FirstName  string
	LastName   string
	ExternalID string
	Role       models.Role
	LocationID *uuid.UUID
}

// Result carries the new principal's id and its temporary credential. The
// credential is shown to the caller once and is not recoverable afterwards.
type Result struct {
	PrincipalID         uuid.UUID `json:"principal_id"`
	TemporaryCredential string    `json:"temporary_credential"`
}

// Service provisions principals.
type Service struct {
	store       store.Store
	engine      *authz.Engine
	credentials *credential.Issuer
	audit       *audit.Logger
	observer    Observer
	now         func() time.Time
}

// NewService creates a provisioning Service. observer may be nil.
func NewService(s store.Store, engine *authz.Engine, credentials *credential.Issuer, auditLog *audit.Logger, observer Observer) *Service {
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	return &Service{
		store:       s,
		engine:      engine,
		credentials: credentials,
		audit:       auditLog,
		observer:    observer,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProvisionManager creates a MANAGER in req.TenantID. An ADMIN may only do
// this while the tenant has no manager.
func (s *Service) ProvisionManager(ctx context.Context, actor *models.Principal, req Request) (*Result, error) {
	req.Role = models.RoleManager
	return s.Provision(ctx, actor, req)
}

// Provision creates a principal in PENDING_ACTIVATION with a fresh temporary
// credential.
func (s *Service) Provision(ctx context.Context, actor *models.Principal, req Request) (*Result, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		tenant, err := tx.LockTenant(ctx, req.TenantID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.Invalid("tenant_id", "unknown tenant")
			}
			return fmt.Errorf("lock tenant: %w", err)
		}

		managers, err := tx.CountManagers(ctx, tenant.ID)
		if err != nil {
			return fmt.Errorf("count managers: %w", err)
		}
		if err := s.engine.CanProvision(actor, req.Role, tenant.ID, managers); err != nil {
			return err
		}
		if !tenant.IsActive {
			return apperr.Invalid("tenant_id", "tenant is inactive")
		}

		if req.LocationID != nil {
			if err := checkLocation(ctx, tx, tenant.ID, *req.LocationID); err != nil {
				return err
			}
		}

		if _, err := tx.GetPrincipalByExternalID(ctx, req.ExternalID); err == nil {
			return fmt.Errorf("external id %q: %w", req.ExternalID, store.ErrDuplicateKey)
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check external id: %w", err)
		}

		now := s.now()
		p := &models.Principal{
			ID:            uuid.New(),
			TenantID:      &tenant.ID,
			ExternalID:    req.ExternalID,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Role:          req.Role,
			AccountStatus: models.StatusPendingActivation,
			LocationID:    req.LocationID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreatePrincipal(ctx, p); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return fmt.Errorf("external id %q: %w", req.ExternalID, err)
			}
			return fmt.Errorf("create principal: %w", err)
		}

		plain, hash, err := s.credentials.Issue("")
		if err != nil {
			return err
		}
		if err := tx.SetCredentialHash(ctx, p.ID, hash); err != nil {
			return fmt.Errorf("bind credential: %w", err)
		}

		result = &Result{PrincipalID: p.ID, TemporaryCredential: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.observer != nil {
		s.observer.ObserveProvisioned(string(req.Role))
	}
	s.audit.Record(ctx, audit.Entry{
		Event:    audit.EventPrincipalProvisioned,
		ActorID:  actor.ID,
		TargetID: result.PrincipalID,
		TenantID: &req.TenantID,
		Details:  map[string]string{"role": string(req.Role), "external_id": req.ExternalID},
	})
	return result, nil
}

// BootstrapAdmin creates the first ADMIN with the given credential when no
// ADMIN exists yet. The account starts in PENDING_ACTIVATION, so the
// bootstrap credential must be replaced at first login. It reports whether an
// account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, externalID, password string) (bool, error) {
	if !externalIDPattern.MatchString(externalID) {
		return false, apperr.Invalid("external_id", "must be 1-64 characters of [A-Za-z0-9._-]")
	}
	if password == "" {
		return false, apperr.Invalid("password", "must not be empty")
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return false, err
	}

	created := false
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		exists, err := tx.AdminExists(ctx)
		if err != nil {
			return fmt.Errorf("check admin: %w", err)
		}
		if exists {
			return nil
		}
		now := s.now()
		admin := &models.Principal{
			ID:             uuid.New(),
			ExternalID:     externalID,
			FirstName:      "System",
			LastName:       "Administrator",
			Role:           models.RoleAdmin,
			AccountStatus:  models.StatusPendingActivation,
			CredentialHash: hash,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.CreatePrincipal(ctx, admin); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func normalize(req Request) (Request, error) {
	if req.TenantID == uuid.Nil {
		return req, apperr.Invalid("tenant_id", "required")
	}
	if !req.Role.Valid() {
		return req, apperr.Invalid("role", "unknown role %q", req.Role)
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if !externalIDPattern.MatchString(req.ExternalID) {
		return req, apperr.Invalid("external_id", "must be 1-64 characters of [A-Za-z0-9._-]")
	}

	var err error
	if req.FirstName, err = validateName("first_name", req.FirstName); err != nil {
		return req, err
	}
	if req.LastName, err = validateName("last_name", req.LastName); err != nil {
		return req, err
	}
	return req, nil
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Invalid(field, "must not be empty")
	}
	if len(value) > maxNameLength {
		return "", apperr.Invalid(field, "must be at most %d characters", maxNameLength)
	}
	return value, nil
}

func checkLocation(ctx context.Context, tx store.Tx, tenantID, locationID uuid.UUID) error {
	loc, err := tx.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Invalid("location_id", "unknown location")
		}
		return fmt.Errorf("load location: %w", err)
	}
	if loc.TenantID != tenantID {
		return apperr.Invalid("location_id", "location belongs to another tenant")
	}
	if loc.IsArchived {
		return apperr.Invalid("location_id", "location is archived")
	}
	return nil
}
