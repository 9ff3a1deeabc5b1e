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

// UsageSample is one point-in-time resource measurement for a tenant.
type UsageSample struct {
	TenantID       uuid.UUID
	SampledAt      time.Time
	CPUPercent     float64
	MemoryMB       float64
	StorageMB      float64
	BandwidthMB    float64
	PageViews      int64
	UniqueVisitors int64
}

// UsageStore persists the rolling usage sample history.
type UsageStore struct {
	pool *pgxpool.Pool
}

func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	if pool == nil {
		panic("usage store requires a pool")
	}
	return &UsageStore{pool: pool}
}

func (s *UsageStore) Insert(ctx context.Context, sample UsageSample) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(tenant_id, sampled_at, cpu_percent, memory_mb, storage_mb, bandwidth_mb, page_views, unique_visitors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, usageSamplesTable)

	_, err := s.pool.Exec(ctx, query,
		sample.TenantID, sample.SampledAt, sample.CPUPercent, sample.MemoryMB,
		sample.StorageMB, sample.BandwidthMB, sample.PageViews, sample.UniqueVisitors)
	if err != nil {
		return fmt.Errorf("insert usage sample for %s: %w", sample.TenantID, err)
	}
	return nil
}

// Latest returns the most recent sample for a tenant.
func (s *UsageStore) Latest(ctx context.Context, tenantID uuid.UUID) (UsageSample, error) {
	query := fmt.Sprintf(`SELECT tenant_id, sampled_at, cpu_percent, memory_mb,
		storage_mb, bandwidth_mb, page_views, unique_visitors
		FROM %s WHERE tenant_id = $1 ORDER BY sampled_at DESC LIMIT 1`, usageSamplesTable)

	var sample UsageSample
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&sample.TenantID, &sample.SampledAt, &sample.CPUPercent, &sample.MemoryMB,
		&sample.StorageMB, &sample.BandwidthMB, &sample.PageViews, &sample.UniqueVisitors)
	if errors.Is(err, pgx.ErrNoRows) {
		return UsageSample{}, fmt.Errorf("latest usage for %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return UsageSample{}, fmt.Errorf("latest usage for %s: %w", tenantID, err)
	}
	return sample, nil
}

// Range returns samples taken at or after since, oldest first.
func (s *UsageStore) Range(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]UsageSample, error) {
	query := fmt.Sprintf(`SELECT tenant_id, sampled_at, cpu_percent, memory_mb,
		storage_mb, bandwidth_mb, page_views, unique_visitors
		FROM %s WHERE tenant_id = $1 AND sampled_at >= $2
		ORDER BY sampled_at`, usageSamplesTable)

	rows, err := s.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("usage range for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []UsageSample
	for rows.Next() {
		var sample UsageSample
		if err := rows.Scan(&sample.TenantID, &sample.SampledAt, &sample.CPUPercent,
			&sample.MemoryMB, &sample.StorageMB, &sample.BandwidthMB,
			&sample.PageViews, &sample.UniqueVisitors); err != nil {
			return nil, fmt.Errorf("scan usage sample: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage samples: %w", err)
	}
	return out, nil
}

// PruneBefore drops samples older than the cutoff and reports how many
// rows went away.
func (s *UsageStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE sampled_at < $1`, usageSamplesTable)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune usage samples: %w", err)
	}
	return tag.RowsAffected(), nil
}
