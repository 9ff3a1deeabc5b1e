package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diploy/hostfleet/platform/go/quota"
)

const planColumns = `id, slug, name, price_cents, billing_cycle, tier, is_default,
	has_backups, trial_days, cpu_percent, memory_mb, storage_mb, bandwidth_mb,
	page_views, backup_frequency_hours, backup_retention_days, created_at`

// PlanStore persists quota plans in the control schema.
type PlanStore struct {
	pool *pgxpool.Pool
}

func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	if pool == nil {
		panic("plan store requires a pool")
	}
	return &PlanStore{pool: pool}
}

// Seed upserts the given plans keyed by slug. Used on first boot and by
// the CLI to install the stock catalog.
func (s *PlanStore) Seed(ctx context.Context, plans []quota.Plan) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, slug, name, price_cents, billing_cycle, tier, is_default, has_backups,
		 trial_days, cpu_percent, memory_mb, storage_mb, bandwidth_mb, page_views,
		 backup_frequency_hours, backup_retention_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			price_cents = EXCLUDED.price_cents,
			billing_cycle = EXCLUDED.billing_cycle,
			tier = EXCLUDED.tier,
			is_default = EXCLUDED.is_default,
			has_backups = EXCLUDED.has_backups,
			trial_days = EXCLUDED.trial_days,
			cpu_percent = EXCLUDED.cpu_percent,
			memory_mb = EXCLUDED.memory_mb,
			storage_mb = EXCLUDED.storage_mb,
			bandwidth_mb = EXCLUDED.bandwidth_mb,
			page_views = EXCLUDED.page_views,
			backup_frequency_hours = EXCLUDED.backup_frequency_hours,
			backup_retention_days = EXCLUDED.backup_retention_days`, plansTable)

	for _, p := range plans {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		_, err := s.pool.Exec(ctx, query,
			p.ID, p.Slug, p.Name, p.PriceCents, p.BillingCycle, p.Tier,
			p.IsDefault, p.HasBackups, p.TrialDays,
			p.Limits.CPUPercent, p.Limits.MemoryMB, p.Limits.StorageMB,
			p.Limits.BandwidthMB, p.Limits.PageViews,
			p.Limits.BackupFrequencyHours, p.Limits.BackupRetentionDays)
		if err != nil {
			return fmt.Errorf("seed plan %q: %w", p.Slug, err)
		}
	}
	return nil
}

func (s *PlanStore) Get(ctx context.Context, id uuid.UUID) (quota.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, planColumns, plansTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, id), fmt.Sprintf("plan %s", id))
}

func (s *PlanStore) GetBySlug(ctx context.Context, slug string) (quota.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE slug = $1`, planColumns, plansTable)
	return s.scanOne(s.pool.QueryRow(ctx, query, slug), fmt.Sprintf("plan %q", slug))
}

// GetDefault returns the catalog's fallback plan.
func (s *PlanStore) GetDefault(ctx context.Context) (quota.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE is_default ORDER BY created_at LIMIT 1`, planColumns, plansTable)
	return s.scanOne(s.pool.QueryRow(ctx, query), "default plan")
}

func (s *PlanStore) List(ctx context.Context) ([]quota.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY price_cents`, planColumns, plansTable)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []quota.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return out, nil
}

func (s *PlanStore) scanOne(row pgx.Row, what string) (quota.Plan, error) {
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return quota.Plan{}, fmt.Errorf("get %s: %w", what, ErrNotFound)
	}
	if err != nil {
		return quota.Plan{}, fmt.Errorf("get %s: %w", what, err)
	}
	return p, nil
}

func scanPlan(row pgx.Row) (quota.Plan, error) {
	var p quota.Plan
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.PriceCents, &p.BillingCycle,
		&p.Tier, &p.IsDefault, &p.HasBackups, &p.TrialDays,
		&p.Limits.CPUPercent, &p.Limits.MemoryMB, &p.Limits.StorageMB,
		&p.Limits.BandwidthMB, &p.Limits.PageViews,
		&p.Limits.BackupFrequencyHours, &p.Limits.BackupRetentionDays,
		&p.CreatedAt)
	return p, err
}
