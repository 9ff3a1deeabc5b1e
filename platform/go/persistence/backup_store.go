package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BackupRecord describes one completed archive for a tenant.
type BackupRecord struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Kind        string // "full" | "files" | "database"
	ArchivePath string
	SizeBytes   int64
	Manifest    []byte // JSON manifest as written next to the archive
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

// BackupStore persists backup bookkeeping rows.
type BackupStore struct {
	pool *pgxpool.Pool
}

func NewBackupStore(pool *pgxpool.Pool) *BackupStore {
	if pool == nil {
		panic("backup store requires a pool")
	}
	return &BackupStore{pool: pool}
}

func (s *BackupStore) Insert(ctx context.Context, rec BackupRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, tenant_id, kind, archive_path, size_bytes, manifest, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, backupsTable)

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.Kind, rec.ArchivePath, rec.SizeBytes,
		rec.Manifest, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert backup %s: %w", rec.ID, err)
	}
	return nil
}

// Last returns the most recent backup of the given kind for a tenant.
func (s *BackupStore) Last(ctx context.Context, tenantID uuid.UUID, kind string) (BackupRecord, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, kind, archive_path, size_bytes, manifest, created_at, expires_at
		FROM %s WHERE tenant_id = $1 AND kind = $2
		ORDER BY created_at DESC LIMIT 1`, backupsTable)

	var rec BackupRecord
	err := s.pool.QueryRow(ctx, query, tenantID, kind).Scan(
		&rec.ID, &rec.TenantID, &rec.Kind, &rec.ArchivePath, &rec.SizeBytes,
		&rec.Manifest, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BackupRecord{}, fmt.Errorf("last %s backup for %s: %w", kind, tenantID, ErrNotFound)
	}
	if err != nil {
		return BackupRecord{}, fmt.Errorf("last %s backup for %s: %w", kind, tenantID, err)
	}
	return rec, nil
}

func (s *BackupStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]BackupRecord, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, kind, archive_path, size_bytes, manifest, created_at, expires_at
		FROM %s WHERE tenant_id = $1 ORDER BY created_at DESC`, backupsTable)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list backups for %s: %w", tenantID, err)
	}
	defer rows.Close()
	return scanBackups(rows)
}

// ListExpired returns backups whose retention window has closed.
func (s *BackupStore) ListExpired(ctx context.Context, now time.Time) ([]BackupRecord, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, kind, archive_path, size_bytes, manifest, created_at, expires_at
		FROM %s WHERE expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at`, backupsTable)

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired backups: %w", err)
	}
	defer rows.Close()
	return scanBackups(rows)
}

func (s *BackupStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, backupsTable)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

func scanBackups(rows pgx.Rows) ([]BackupRecord, error) {
	var out []BackupRecord
	for rows.Next() {
		var rec BackupRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.Kind, &rec.ArchivePath,
			&rec.SizeBytes, &rec.Manifest, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan backup row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup rows: %w", err)
	}
	return out, nil
}
