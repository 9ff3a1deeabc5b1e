// Package repo adapts the usage sample store to the monitor service.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/diploy/hostfleet/domains/monitor/be/service"
	"github.com/diploy/hostfleet/platform/go/persistence"
)

// Postgres backs service.UsageRepo with the usage_samples table.
type Postgres struct {
	store *persistence.UsageStore
}

func NewPostgres(store *persistence.UsageStore) *Postgres {
	if store == nil {
		panic("usage store is required")
	}
	return &Postgres{store: store}
}

func (r *Postgres) Insert(ctx context.Context, sample service.Sample) error {
	return r.store.Insert(ctx, toRecord(sample))
}

func (r *Postgres) Latest(ctx context.Context, tenantID uuid.UUID) (service.Sample, error) {
	rec, err := r.store.Latest(ctx, tenantID)
	if errors.Is(err, persistence.ErrNotFound) {
		return service.Sample{}, service.ErrNoSamples
	}
	if err != nil {
		return service.Sample{}, err
	}
	return fromRecord(rec), nil
}

func (r *Postgres) Range(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]service.Sample, error) {
	recs, err := r.store.Range(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	out := make([]service.Sample, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out, nil
}

func (r *Postgres) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.PruneBefore(ctx, cutoff)
}

func toRecord(s service.Sample) persistence.UsageSample {
	return persistence.UsageSample{
		TenantID:       s.TenantID,
		SampledAt:      s.SampledAt,
		CPUPercent:     s.CPUPercent,
		MemoryMB:       s.MemoryMB,
		StorageMB:      s.StorageMB,
		BandwidthMB:    s.BandwidthMB,
		PageViews:      s.PageViews,
		UniqueVisitors: s.UniqueVisitors,
	}
}

func fromRecord(rec persistence.UsageSample) service.Sample {
	return service.Sample{
		TenantID:       rec.TenantID,
		SampledAt:      rec.SampledAt,
		CPUPercent:     rec.CPUPercent,
		MemoryMB:       rec.MemoryMB,
		StorageMB:      rec.StorageMB,
		BandwidthMB:    rec.BandwidthMB,
		PageViews:      rec.PageViews,
		UniqueVisitors: rec.UniqueVisitors,
	}
}

var _ service.UsageRepo = (*Postgres)(nil)
