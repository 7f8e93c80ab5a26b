// Package identity turns a bearer credential into the stored Principal it
// names. It is the only source of truth for who is asking.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/inventomatic/internal/lifecycle"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrAccountInactive    = fmt.Errorf("%w: account inactive", ErrUnauthenticated)
	ErrTenantInactive     = fmt.Errorf("%w: tenant inactive", ErrUnauthenticated)
)

// Verifier checks a plaintext credential against a stored hash. Hash is
// used once to build the decoy hash compared on failed lookups.
type Verifier interface {
	Verify(hash, plain string) error
	Hash(plain string) (string, error)
}

// decoyCredential is hashed at the configured cost and compared whenever a
// login names no usable account, so every failed login pays for one hash
// comparison.
const decoyCredential = "login-decoy-credential"

// LoginObserver receives the outcome of each login attempt.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Resolver resolves bearer tokens and performs logins.
type Resolver struct {
	store    store.Reader
	tokens   *Tokens
	verifier Verifier
	observer LoginObserver

	decoyOnce sync.Once
	decoyHash string
}

// NewResolver creates a Resolver. observer may be nil.
func NewResolver(s store.Reader, tokens *Tokens, verifier Verifier, observer LoginObserver) *Resolver {
	return &Resolver{store: s, tokens: tokens, verifier: verifier, observer: observer}
}

// Resolve returns the stored principal named by bearerToken. Token claims
// other than the subject are ignored.
func (r *Resolver) Resolve(ctx context.Context, bearerToken string) (*models.Principal, error) {
	if bearerToken == "" {
		return nil, ErrUnauthenticated
	}
	id, err := r.tokens.Parse(bearerToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	p, err := r.store.GetPrincipal(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}
	if err := r.gate(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal *models.Principal `json:"principal"`
}

// Login verifies externalID/password and issues a token. Unknown ids and
// wrong passwords fail with the same error; account and tenant lockouts are
// only reported once the credential has been verified.
func (r *Resolver) Login(ctx context.Context, externalID, password string) (*LoginResult, error) {
	p, err := r.store.GetPrincipalByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		r.verifyDecoy(password)
		r.observe("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load principal: %w", err)
	}

	if p.CredentialHash == "" {
		r.verifyDecoy(password)
		r.observe("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if err := r.verifier.Verify(p.CredentialHash, password); err != nil {
		r.observe("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if err := r.gate(ctx, p); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			r.observe("locked_out")
		}
		return nil, err
	}

	token, expiresAt, err := r.tokens.Issue(p.ID)
	if err != nil {
		return nil, err
	}
	r.observe("success")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Principal: p}, nil
}

// gate applies the tenant and account status checks every authentication must pass.
func (r *Resolver) gate(ctx context.Context, p *models.Principal) error {
	var tenant *models.Tenant
	if p.TenantID != nil {
		t, err := r.store.GetTenant(ctx, *p.TenantID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		if err != nil {
			return fmt.Errorf("load tenant: %w", err)
		}
		tenant = t
	}

	if lifecycle.CanAuthenticate(tenant, p) {
		return nil
	}
	if tenant != nil && !tenant.IsActive {
		return ErrTenantInactive
	}
	if p.AccountStatus == models.StatusInactive {
		return ErrAccountInactive
	}
	return ErrUnauthenticated
}

// verifyDecoy runs a comparison that always fails, taking as long as a real one.
func (r *Resolver) verifyDecoy(password string) {
	r.decoyOnce.Do(func() {
		hash, err := r.verifier.Hash(decoyCredential)
		if err != nil {
			return
		}
		r.decoyHash = hash
	})
	if r.decoyHash != "" {
		_ = r.verifier.Verify(r.decoyHash, password)
	}
}

func (r *Resolver) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveLogin(outcome)
	}
}
