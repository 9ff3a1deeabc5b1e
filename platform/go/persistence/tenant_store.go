package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantRecord is the persistence shape of a tenant row. Domain services
// wrap it in their own model types.
type TenantRecord struct {
	ID               uuid.UUID
	Slug             string
	Title            string
	OwnerID          *uuid.UUID
	PlanID           *uuid.UUID
	Status           string
	NamespacePrefix  string
	RootPath         string
	ConfigPath       string
	AdminEmail       string
	AdminUsername    string
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	SuspendedAt      *time.Time
	SuspensionReason *string
	DeletedAt        *time.Time
}

const tenantColumns = `id, slug, title, owner_id, plan_id, status, namespace_prefix,
	root_path, config_path, admin_email, admin_username,
	created_at, expires_at, suspended_at, suspension_reason, deleted_at`

// TenantStore persists tenant rows in the control schema.
type TenantStore struct {
	pool *pgxpool.Pool
}

func NewTenantStore(pool *pgxpool.Pool) *TenantStore {
	if pool == nil {
		panic("tenant store requires a pool")
	}
	return &TenantStore{pool: pool}
}

// Create inserts a tenant row. A slug collision surfaces as ErrDuplicate.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, slug, title, owner_id, plan_id, status, namespace_prefix,
		 root_path, config_path, admin_email, admin_username, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, tenantsTable)

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Slug, rec.Title, rec.OwnerID, rec.PlanID, rec.Status,
		rec.NamespacePrefix, rec.RootPath, rec.ConfigPath,
		rec.AdminEmail, rec.AdminUsername, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("insert tenant %q: %w", rec.Slug, ErrDuplicate)
		}
		return fmt.Errorf("insert tenant %q: %w", rec.Slug, err)
	}
	return nil
}

func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, tenantColumns, tenantsTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, id), fmt.Sprintf("tenant %s", id))
}

func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, tenantColumns, tenantsTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, slug), fmt.Sprintf("tenant %q", slug))
}

// List returns tenants filtered by status; an empty filter returns every row.
func (s *TenantStore) List(ctx context.Context, statuses ...string) ([]TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, tenantColumns, tenantsTable)
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statuses)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListExpired returns tenants whose expiry has passed. Rows with a NULL
// expires_at never expire and are excluded by the predicate.
func (s *TenantStore) ListExpired(ctx context.Context, now time.Time) ([]TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE expires_at IS NOT NULL AND expires_at < $1
		  AND status IN ('active', 'suspended')
		ORDER BY expires_at`, tenantColumns, tenantsTable)

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired tenants: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListSuspendedBefore returns suspended tenants whose suspension started
// before the cutoff.
func (s *TenantStore) ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE status = 'suspended' AND suspended_at IS NOT NULL AND suspended_at < $1
		ORDER BY suspended_at`, tenantColumns, tenantsTable)

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list suspended tenants: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// Activate records the provisioned artifact paths and the final namespace
// prefix while flipping the row to active.
func (s *TenantStore) Activate(ctx context.Context, id uuid.UUID, rootPath, configPath, namespacePrefix string) error {
	query := fmt.Sprintf(`UPDATE %s
		SET status = 'active', root_path = $2, config_path = $3, namespace_prefix = $4
		WHERE id = $1`, tenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, rootPath, configPath, namespacePrefix)
	if err != nil {
		return fmt.Errorf("activate tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activate tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStatus moves a tenant between lifecycle states and maintains the
// suspension bookkeeping columns.
func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, suspendedAt *time.Time, reason *string) error {
	query := fmt.Sprintf(`UPDATE %s
		SET status = $2, suspended_at = $3, suspension_reason = $4
		WHERE id = $1`, tenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, status, suspendedAt, reason)
	if err != nil {
		return fmt.Errorf("update tenant %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s status: %w", id, ErrNotFound)
	}
	return nil
}

// MarkDeleted stamps the terminal state before the row is purged.
func (s *TenantStore) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s
		SET status = 'deleted', deleted_at = $2
		WHERE id = $1`, tenantsTable)

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark tenant %s deleted: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark tenant %s deleted: %w", id, ErrNotFound)
	}
	return nil
}

// Purge removes the tenant row. The namespace registry entry stays behind.
func (s *TenantStore) Purge(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tenantsTable)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("purge tenant %s: %w", id, err)
	}
	return nil
}

func (s *TenantStore) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET expires_at = $2 WHERE id = $1`, tenantsTable)
	tag, err := s.pool.Exec(ctx, query, id, expiresAt)
	if err != nil {
		return fmt.Errorf("update tenant %s expiry: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s expiry: %w", id, ErrNotFound)
	}
	return nil
}

func (s *TenantStore) UpdatePlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET plan_id = $2 WHERE id = $1`, tenantsTable)
	tag, err := s.pool.Exec(ctx, query, id, planID)
	if err != nil {
		return fmt.Errorf("update tenant %s plan: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s plan: %w", id, ErrNotFound)
	}
	return nil
}

func (s *TenantStore) scanOne(row pgx.Row, what string) (TenantRecord, error) {
	var rec TenantRecord
	err := row.Scan(&rec.ID, &rec.Slug, &rec.Title, &rec.OwnerID, &rec.PlanID,
		&rec.Status, &rec.NamespacePrefix, &rec.RootPath, &rec.ConfigPath,
		&rec.AdminEmail, &rec.AdminUsername, &rec.CreatedAt, &rec.ExpiresAt,
		&rec.SuspendedAt, &rec.SuspensionReason, &rec.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRecord{}, fmt.Errorf("get %s: %w", what, ErrNotFound)
	}
	if err != nil {
		return TenantRecord{}, fmt.Errorf("get %s: %w", what, err)
	}
	return rec, nil
}

func (s *TenantStore) scanAll(rows pgx.Rows) ([]TenantRecord, error) {
	var out []TenantRecord
	for rows.Next() {
		var rec TenantRecord
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Title, &rec.OwnerID, &rec.PlanID,
			&rec.Status, &rec.NamespacePrefix, &rec.RootPath, &rec.ConfigPath,
			&rec.AdminEmail, &rec.AdminUsername, &rec.CreatedAt, &rec.ExpiresAt,
			&rec.SuspendedAt, &rec.SuspensionReason, &rec.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", err)
	}
	return out, nil
}
