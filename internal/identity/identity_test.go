package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/credential"
	"github.com/kiranshivaraju/inventomatic/internal/identity"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "0123456789abcdef0123456789abcdef"

// --- Fixtures ---

type fixture struct {
	store    *store.MemoryStore
	issuer   *credential.Issuer
	tokens   *identity.Tokens
	resolver *identity.Resolver
	tenant   *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	issuer := credential.NewIssuer(bcrypt.MinCost)
	tokens := identity.NewTokens(secret, time.Hour)

	tenant := &models.Tenant{ID: uuid.New(), Name: "Chemistry", IsActive: true}
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateTenant(context.Background(), tenant)
	}))

	return &fixture{
		store:    s,
		issuer:   issuer,
		tokens:   tokens,
		resolver: identity.NewResolver(s, tokens, issuer, nil),
		tenant:   tenant,
	}
}

func (f *fixture) addPrincipal(t *testing.T, role models.Role, status models.AccountStatus, password string) *models.Principal {
	t.Helper()
	hash, err := f.issuer.Hash(password)
	require.NoError(t, err)

	p := &models.Principal{
		ID:             uuid.New(),
		ExternalID:     "user-" + uuid.NewString()[:8],
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Role:           role,
		AccountStatus:  status,
		CredentialHash: hash,
	}
	if role != models.RoleAdmin {
		p.TenantID = &f.tenant.ID
	}
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreatePrincipal(context.Background(), p)
	}))
	return p
}

func (f *fixture) setTenantActive(t *testing.T, active bool) {
	t.Helper()
	updated := *f.tenant
	updated.IsActive = active
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdateTenant(context.Background(), &updated)
	}))
}

// --- Tokens ---

func TestTokens_RoundTrip(t *testing.T) {
	tokens := identity.NewTokens(secret, time.Hour)
	id := uuid.New()

	tok, expiresAt, err := tokens.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokens_Expired(t *testing.T) {
	tokens := identity.NewTokens(secret, -time.Minute)
	tok, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokens_WrongSecret(t *testing.T) {
	tok, _, err := identity.NewTokens(secret, time.Hour).Issue(uuid.New())
	require.NoError(t, err)

	_, err = identity.NewTokens("ffffffffffffffffffffffffffffffff", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokens_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "inventomatic",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = identity.NewTokens(secret, time.Hour).Parse(tok)
	assert.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = identity.NewTokens(secret, time.Hour).Parse(unsigned)
	assert.Error(t, err)
}

func TestTokens_RejectsForeignIssuerAndMissingExpiry(t *testing.T) {
	tokens := identity.NewTokens(secret, time.Hour)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	forever, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
		Issuer:  "inventomatic",
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = tokens.Parse(forever)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}

func TestTokens_InvalidSubject(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Issuer:    "inventomatic",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = identity.NewTokens(secret, time.Hour).Parse(tok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subject")
}

// --- Resolve ---

func TestResolve_ReturnsStoredPrincipal(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, models.RoleStaff, models.StatusActive, "pw")
	tok, _, err := f.tokens.Issue(p.ID)
	require.NoError(t, err)

	got, err := f.resolver.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, models.RoleStaff, got.Role)
	assert.Equal(t, f.tenant.ID, *got.TenantID)
}

func TestResolve_ReflectsCurrentRoleNotTokenTime(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, models.RoleStaff, models.StatusActive, "pw")
	tok, _, err := f.tokens.Issue(p.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdatePrincipalRole(context.Background(), p.ID, models.RoleStaff, models.RoleManager)
	}))

	got, err := f.resolver.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, got.Role)
}

func TestResolve_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	_, err = f.resolver.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	ghost, _, err := f.tokens.Issue(uuid.New())
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, ghost)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)

	inactive := f.addPrincipal(t, models.RoleStaff, models.StatusInactive, "pw")
	tok, _, err := f.tokens.Issue(inactive.ID)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, tok)
	assert.ErrorIs(t, err, identity.ErrAccountInactive)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestResolve_InactiveTenantLocksOutEveryStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tokens []string
	for _, status := range []models.AccountStatus{
		models.StatusPendingActivation, models.StatusActive, models.StatusInactive, models.StatusForcePasswordReset,
	} {
		for _, role := range []models.Role{models.RoleManager, models.RoleStaff} {
			p := f.addPrincipal(t, role, status, "pw")
			tok, _, err := f.tokens.Issue(p.ID)
			require.NoError(t, err)
			tokens = append(tokens, tok)
		}
	}

	f.setTenantActive(t, false)

	for _, tok := range tokens {
		_, err := f.resolver.Resolve(ctx, tok)
		assert.ErrorIs(t, err, identity.ErrTenantInactive)
	}
}

func TestResolve_PendingPrincipalAuthenticates(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, models.RoleStaff, models.StatusPendingActivation, "temp")
	tok, _, err := f.tokens.Issue(p.ID)
	require.NoError(t, err)

	got, err := f.resolver.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingActivation, got.AccountStatus)
}

func TestResolve_AdminHasNoTenant(t *testing.T) {
	f := newFixture(t)
	admin := f.addPrincipal(t, models.RoleAdmin, models.StatusActive, "pw")
	tok, _, err := f.tokens.Issue(admin.ID)
	require.NoError(t, err)

	got, err := f.resolver.Resolve(context.Background(), tok)
	require.NoError(t, err)
	assert.Nil(t, got.TenantID)
}

// --- Login ---

type loginCounter map[string]int

func (c loginCounter) ObserveLogin(outcome string) { c[outcome]++ }

func TestLogin(t *testing.T) {
	f := newFixture(t)
	counter := loginCounter{}
	resolver := identity.NewResolver(f.store, f.tokens, f.issuer, counter)
	ctx := context.Background()
	p := f.addPrincipal(t, models.RoleManager, models.StatusActive, "correct horse")

	res, err := resolver.Login(ctx, p.ExternalID, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.Principal.ID)

	id, err := f.tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)

	_, err = resolver.Login(ctx, p.ExternalID, "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = resolver.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	assert.Equal(t, 1, counter["success"])
	assert.Equal(t, 2, counter["invalid_credentials"])
}

func TestLogin_LockoutOnlyAfterCredentialVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addPrincipal(t, models.RoleStaff, models.StatusActive, "pw")
	f.setTenantActive(t, false)

	_, err := f.resolver.Login(ctx, p.ExternalID, "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = f.resolver.Login(ctx, p.ExternalID, "pw")
	assert.ErrorIs(t, err, identity.ErrTenantInactive)
}

func TestLogin_NoCredentialBound(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, models.RoleStaff, models.StatusActive, "pw")
	require.NoError(t, f.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.SetCredentialHash(context.Background(), p.ID, "")
	}))

	_, err := f.resolver.Login(context.Background(), p.ExternalID, "")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

// recordingVerifier counts comparisons made against a real issuer.
type recordingVerifier struct {
	*credential.Issuer
	hashes []string
}

func (v *recordingVerifier) Verify(hash, plain string) error {
	v.hashes = append(v.hashes, hash)
	return v.Issuer.Verify(hash, plain)
}

func TestLogin_UnknownIDStillComparesAHash(t *testing.T) {
	f := newFixture(t)
	verifier := &recordingVerifier{Issuer: f.issuer}
	resolver := identity.NewResolver(f.store, f.tokens, verifier, nil)
	ctx := context.Background()

	_, err := resolver.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	require.Len(t, verifier.hashes, 1)
	assert.NotEmpty(t, verifier.hashes[0])
	_, costErr := bcrypt.Cost([]byte(verifier.hashes[0]))
	assert.NoError(t, costErr)

	_, err = resolver.Login(ctx, "nobody-else", "correct horse")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	require.Len(t, verifier.hashes, 2)
	assert.Equal(t, verifier.hashes[0], verifier.hashes[1])
}

func TestLogin_UnknownIDAndWrongPasswordDoTheSameWork(t *testing.T) {
	f := newFixture(t)
	verifier := &recordingVerifier{Issuer: f.issuer}
	resolver := identity.NewResolver(f.store, f.tokens, verifier, nil)
	ctx := context.Background()
	p := f.addPrincipal(t, models.RoleStaff, models.StatusActive, "pw")

	_, err := resolver.Login(ctx, p.ExternalID, "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = resolver.Login(ctx, "nobody", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	require.NoError(t, f.store.InTx(ctx, func(tx store.Tx) error {
		return tx.SetCredentialHash(ctx, p.ID, "")
	}))
	_, err = resolver.Login(ctx, p.ExternalID, "")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	assert.Len(t, verifier.hashes, 3)
	for _, h := range verifier.hashes {
		assert.NotEmpty(t, h)
	}
}
