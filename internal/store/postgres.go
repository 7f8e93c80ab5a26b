package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
)

const principalColumns = `id, tenant_id, external_id, first_name, last_name, role, account_status,
	location_id, credential_hash, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{db: pool}, pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside a READ COMMITTED transaction. Tenant-wide invariants
// are protected by LockTenant rather than by the isolation level.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&postgresTx{queries: queries{db: pgxTx}}); err != nil {
		return classify(err)
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type postgresTx struct {
	queries
}

// queries implements Reader and the write half of Tx against any querier.
type queries struct {
	db querier
}

// --- Tenants ---

func (q queries) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return q.getTenant(ctx, `SELECT id, name, is_active, created_at, updated_at FROM tenants WHERE id = $1`, id)
}

func (q queries) LockTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return q.getTenant(ctx, `SELECT id, name, is_active, created_at, updated_at FROM tenants WHERE id = $1 FOR UPDATE`, id)
}

func (q queries) getTenant(ctx context.Context, query string, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := q.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (q queries) ListTenants(ctx context.Context) ([]*models.TenantSummary, error) {
	rows, err := q.db.Query(ctx,
		`SELECT t.id, t.name, t.is_active, t.created_at, t.updated_at, COUNT(u.id)
		 FROM tenants t LEFT JOIN users u ON u.tenant_id = t.id
		 GROUP BY t.id ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.TenantSummary
	for rows.Next() {
		var t models.TenantSummary
		if err := rows.Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &t.UserCount); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (q queries) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO tenants (id, name, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Name, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (q queries) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE tenants SET name = $2, is_active = $3, updated_at = NOW() WHERE id = $1`,
		t.ID, t.Name, t.IsActive)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Principals ---

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(&p.ID, &p.TenantID, &p.ExternalID, &p.FirstName, &p.LastName, &p.Role,
		&p.AccountStatus, &p.LocationID, &p.CredentialHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	p, err := scanPrincipal(q.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

func (q queries) GetPrincipalByExternalID(ctx context.Context, externalID string) (*models.Principal, error) {
	p, err := scanPrincipal(q.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get principal by external id: %w", err)
	}
	return p, nil
}

func (q queries) ListTenantUsers(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantUser, error) {
	rows, err := q.db.Query(ctx,
		`SELECT u.id, u.tenant_id, u.external_id, u.first_name, u.last_name, u.role, u.account_status,
		        u.location_id, u.credential_hash, u.created_at, u.updated_at,
		        COALESCE(array_agg(p.permission ORDER BY p.permission) FILTER (WHERE p.permission IS NOT NULL), '{}')
		 FROM users u LEFT JOIN user_permissions p ON p.user_id = u.id
		 WHERE u.tenant_id = $1
		 GROUP BY u.id ORDER BY u.last_name, u.first_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}
	defer rows.Close()

	var users []*models.TenantUser
	for rows.Next() {
		var u models.TenantUser
		var perms []string
		if err := rows.Scan(&u.ID, &u.TenantID, &u.ExternalID, &u.FirstName, &u.LastName, &u.Role,
			&u.AccountStatus, &u.LocationID, &u.CredentialHash, &u.CreatedAt, &u.UpdatedAt, &perms); err != nil {
			return nil, fmt.Errorf("scan tenant user: %w", err)
		}
		u.Permissions = toPermissions(perms)
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (q queries) ListGrants(ctx context.Context, userID uuid.UUID) ([]models.Permission, error) {
	rows, err := q.db.Query(ctx,
		`SELECT permission FROM user_permissions WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	perms := []models.Permission{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		perms = append(perms, models.Permission(p))
	}
	return perms, rows.Err()
}

func (q queries) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = 'ADMIN')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin exists: %w", err)
	}
	return exists, nil
}

func (q queries) CountManagers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = 'MANAGER'`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count managers: %w", err)
	}
	return n, nil
}

func (q queries) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO users (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TenantID, p.ExternalID, p.FirstName, p.LastName, p.Role, p.AccountStatus,
		p.LocationID, p.CredentialHash, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

func (q queries) UpdatePrincipalRole(ctx context.Context, id uuid.UUID, from, to models.Role) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET role = $3, updated_at = NOW() WHERE id = $1 AND role = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update principal role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (q queries) UpdatePrincipalStatus(ctx context.Context, id uuid.UUID, from, to models.AccountStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET account_status = $3, updated_at = NOW() WHERE id = $1 AND account_status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update principal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (q queries) UpdatePrincipalProfile(ctx context.Context, id uuid.UUID, firstName, lastName string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, updated_at = NOW() WHERE id = $1`, id, firstName, lastName)
	if err != nil {
		return fmt.Errorf("update principal profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q queries) SetCredentialHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET credential_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set credential hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Permission grants ---

func (q queries) DeleteGrants(ctx context.Context, userID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	return nil
}

func (q queries) ReplaceGrants(ctx context.Context, userID, tenantID uuid.UUID, perms []models.Permission) error {
	if err := q.DeleteGrants(ctx, userID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO user_permissions (user_id, tenant_id, permission)
		 SELECT $1, $2, unnest($3::text[])`, userID, tenantID, fromPermissions(perms))
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert grants: %w", err)
	}
	return nil
}

// --- Locations ---

func (q queries) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var l models.Location
	err := q.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, is_archived, created_at, updated_at FROM locations WHERE id = $1`, id,
	).Scan(&l.ID, &l.TenantID, &l.Name, &l.IsArchived, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func (q queries) ListLocations(ctx context.Context, tenantID uuid.UUID, includeArchived bool) ([]*models.Location, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, tenant_id, name, is_archived, created_at, updated_at FROM locations
		 WHERE tenant_id = $1 AND ($2 OR NOT is_archived) ORDER BY name`, tenantID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []*models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Name, &l.IsArchived, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, &l)
	}
	return locations, rows.Err()
}

func (q queries) CreateLocation(ctx context.Context, l *models.Location) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO locations (id, tenant_id, name, is_archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.TenantID, l.Name, l.IsArchived, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	return nil
}

func (q queries) ArchiveLocation(ctx context.Context, id, tenantID uuid.UUID) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE locations SET is_archived = TRUE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("archive location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func toPermissions(in []string) []models.Permission {
	out := make([]models.Permission, 0, len(in))
	for _, p := range in {
		out = append(out, models.Permission(p))
	}
	return out
}

func fromPermissions(in []models.Permission) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, string(p))
	}
	return out
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// classify maps transaction aborts caused by concurrent writers to ErrConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
