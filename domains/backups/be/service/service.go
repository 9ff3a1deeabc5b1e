// Package service creates, replicates, and prunes tenant backups. The
// backup sweep drives it on a per-plan cadence; the CLI can invoke it
// directly.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/metrics"
	"github.com/diploy/hostfleet/platform/go/persistence"
	"github.com/diploy/hostfleet/platform/go/quota"
)

// Backup kinds. A full backup carries the file tree and the SQL dump in
// one archive.
const (
	KindFull     = "full"
	KindFiles    = "files"
	KindDatabase = "database"
)

var ErrUnknownKind = errors.New("unknown backup kind")

// Store is the bookkeeping slice the service needs. Satisfied by
// persistence.BackupStore.
type Store interface {
	Insert(ctx context.Context, rec persistence.BackupRecord) error
	Last(ctx context.Context, tenantID uuid.UUID, kind string) (persistence.BackupRecord, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]persistence.BackupRecord, error)
	ListExpired(ctx context.Context, now time.Time) ([]persistence.BackupRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ Store = (*persistence.BackupStore)(nil)

// Service builds tenant archives and keeps their bookkeeping rows.
type Service struct {
	store   Store
	dumper  Dumper
	archive external.ArchiveStore // nil disables replication
	logger  *zap.Logger
	now     func() time.Time
}

func New(store Store, dumper Dumper, archive external.ArchiveStore, logger *zap.Logger) *Service {
	if store == nil || dumper == nil {
		panic("backup service requires a store and a dumper")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{store: store, dumper: dumper, archive: archive, logger: logger, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create builds one backup of the given kind for the tenant, writes the
// archive and manifest under the tenant's backups directory, records the
// row, and replicates the archive when a remote store is configured.
func (s *Service) Create(ctx context.Context, t tenantsvc.Tenant, plan quota.Plan, kind string) (persistence.BackupRecord, error) {
	if kind != KindFull && kind != KindFiles && kind != KindDatabase {
		return persistence.BackupRecord{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	now := s.now().UTC()
	backupsDir := filepath.Join(t.RootPath, "backups")
	name := fmt.Sprintf("%s-%s-%s.tar.gz", t.Slug, kind, now.Format("20060102T150405Z"))
	archivePath := filepath.Join(backupsDir, name)

	var dumpPath string
	if kind == KindFull || kind == KindDatabase {
		tmp, err := os.CreateTemp(backupsDir, "dump-*.sql")
		if err != nil {
			return persistence.BackupRecord{}, fmt.Errorf("stage database dump: %w", err)
		}
		dumpPath = tmp.Name()
		_ = tmp.Close()
		defer os.Remove(dumpPath) // nolint:errcheck

		if err := s.dumper.Dump(ctx, t.NamespacePrefix, dumpPath); err != nil {
			return persistence.BackupRecord{}, fmt.Errorf("dump database: %w", err)
		}
	}

	treePath := t.RootPath
	if kind == KindDatabase {
		treePath = ""
	}
	files, rawBytes, err := writeArchive(archivePath, treePath, dumpPath)
	if err != nil {
		os.Remove(archivePath) // nolint:errcheck
		return persistence.BackupRecord{}, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return persistence.BackupRecord{}, fmt.Errorf("stat archive: %w", err)
	}

	manifest := Manifest{
		Slug:            t.Slug,
		NamespacePrefix: t.NamespacePrefix,
		Kind:            kind,
		CreatedAt:       now,
		FileCount:       files,
		RawBytes:        rawBytes,
		HasDatabase:     dumpPath != "",
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return persistence.BackupRecord{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(archivePath), manifestJSON, 0o600); err != nil {
		return persistence.BackupRecord{}, fmt.Errorf("write manifest: %w", err)
	}

	expiresAt := now.Add(plan.BackupRetention())
	rec := persistence.BackupRecord{
		ID:          uuid.New(),
		TenantID:    t.ID,
		Kind:        kind,
		ArchivePath: archivePath,
		SizeBytes:   info.Size(),
		Manifest:    manifestJSON,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return persistence.BackupRecord{}, err
	}

	if s.archive != nil {
		if err := s.archive.Store(ctx, archivePath, name); err != nil {
			// The local archive is already durable and recorded;
			// replication catches up on the next sweep.
			s.logger.Warn("replicate backup archive",
				zap.String("tenant_id", t.ID.String()),
				zap.String("archive", name),
				zap.Error(err))
		}
	}

	metrics.BackupBytes.WithLabelValues(kind).Observe(float64(info.Size()))
	s.logger.Info("backup created",
		zap.String("tenant_id", t.ID.String()),
		zap.String("slug", t.Slug),
		zap.String("kind", kind),
		zap.Int64("size_bytes", info.Size()),
		zap.Int("files", files))
	return rec, nil
}

// EnsureFresh creates a full backup when the tenant's latest one is
// older than the plan's cadence. Returns whether a backup was created.
func (s *Service) EnsureFresh(ctx context.Context, t tenantsvc.Tenant, plan quota.Plan) (bool, error) {
	last, err := s.store.Last(ctx, t.ID, KindFull)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		// first backup
	case err != nil:
		return false, err
	case s.now().UTC().Sub(last.CreatedAt) < plan.BackupFrequency():
		return false, nil
	}

	if _, err := s.Create(ctx, t, plan, KindFull); err != nil {
		return false, err
	}
	return true, nil
}

// PruneExpired deletes archives past retention: local file, manifest,
// replicated copy, then the row. Returns how many were removed.
func (s *Service) PruneExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	var pruned int
	for _, rec := range expired {
		if err := s.removeArchive(ctx, rec); err != nil {
			s.logger.Error("prune backup",
				zap.String("backup_id", rec.ID.String()),
				zap.String("tenant_id", rec.TenantID.String()),
				zap.Error(err))
			continue
		}
		pruned++
	}
	return pruned, nil
}

func (s *Service) removeArchive(ctx context.Context, rec persistence.BackupRecord) error {
	if err := os.Remove(rec.ArchivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := os.Remove(manifestPath(rec.ArchivePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	if s.archive != nil {
		if err := s.archive.Remove(ctx, filepath.Base(rec.ArchivePath)); err != nil {
			return fmt.Errorf("remove replicated archive: %w", err)
		}
	}
	return s.store.Delete(ctx, rec.ID)
}

// List returns a tenant's backups, newest first, for restore tooling.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]persistence.BackupRecord, error) {
	return s.store.ListForTenant(ctx, tenantID)
}
