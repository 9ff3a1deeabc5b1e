package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ControlSchema holds the control-plane tables shared by every binary.
// Tenant workloads live in their own namespaced table sets and never
// touch this schema.
const ControlSchema = "control"

const (
	plansTable         = ControlSchema + ".plans"
	tenantsTable       = ControlSchema + ".tenants"
	usageSamplesTable  = ControlSchema + ".usage_samples"
	backupsTable       = ControlSchema + ".backups"
	namespacesTable    = ControlSchema + ".namespaces"
	notificationsTable = ControlSchema + ".notifications"
)

var bootstrapStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS ` + ControlSchema,

	`CREATE TABLE IF NOT EXISTS ` + plansTable + ` (
		id UUID PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price_cents BIGINT NOT NULL DEFAULT 0,
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		tier TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		has_backups BOOLEAN NOT NULL DEFAULT FALSE,
		trial_days INTEGER NOT NULL DEFAULT 0,
		cpu_percent DOUBLE PRECISION NOT NULL,
		memory_mb DOUBLE PRECISION NOT NULL,
		storage_mb DOUBLE PRECISION NOT NULL,
		bandwidth_mb DOUBLE PRECISION NOT NULL,
		page_views DOUBLE PRECISION NOT NULL,
		backup_frequency_hours INTEGER NOT NULL DEFAULT 0,
		backup_retention_days INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ` + tenantsTable + ` (
		id UUID PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		owner_id UUID,
		plan_id UUID REFERENCES ` + plansTable + `(id),
		status TEXT NOT NULL DEFAULT 'provisioning',
		namespace_prefix TEXT NOT NULL,
		root_path TEXT NOT NULL DEFAULT '',
		config_path TEXT NOT NULL DEFAULT '',
		admin_email TEXT NOT NULL DEFAULT '',
		admin_username TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ,
		suspended_at TIMESTAMPTZ,
		suspension_reason TEXT,
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS tenants_status_idx ON ` + tenantsTable + ` (status)`,
	`CREATE INDEX IF NOT EXISTS tenants_expires_at_idx ON ` + tenantsTable + ` (expires_at) WHERE expires_at IS NOT NULL`,

	// Append-only registry: a prefix stays reserved even after the
	// owning tenant is gone, so namespaces are never reissued.
	`CREATE TABLE IF NOT EXISTS ` + namespacesTable + ` (
		prefix TEXT PRIMARY KEY,
		tenant_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ` + usageSamplesTable + ` (
		id BIGSERIAL PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES ` + tenantsTable + `(id) ON DELETE CASCADE,
		sampled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		cpu_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		memory_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
		storage_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
		bandwidth_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
		page_views BIGINT NOT NULL DEFAULT 0,
		unique_visitors BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS usage_samples_tenant_idx ON ` + usageSamplesTable + ` (tenant_id, sampled_at)`,

	`CREATE TABLE IF NOT EXISTS ` + backupsTable + ` (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES ` + tenantsTable + `(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		archive_path TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		manifest JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS backups_tenant_kind_idx ON ` + backupsTable + ` (tenant_id, kind, created_at)`,

	`CREATE TABLE IF NOT EXISTS ` + notificationsTable + ` (
		id BIGSERIAL PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES ` + tenantsTable + `(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_tenant_kind_idx ON ` + notificationsTable + ` (tenant_id, kind, sent_at)`,
}

// Bootstrap creates the control-plane schema and tables. Statements are
// idempotent so the call is safe on every process start.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range bootstrapStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap control schema: %w", err)
		}
	}
	return nil
}
