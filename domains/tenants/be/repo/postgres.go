// Package repo adapts the shared persistence stores to the tenants
// domain model and error vocabulary.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/persistence"
)

// Postgres implements service.Repository on the control-schema stores.
type Postgres struct {
	store *persistence.TenantStore
}

func NewPostgres(store *persistence.TenantStore) *Postgres {
	if store == nil {
		panic("tenant store is required")
	}
	return &Postgres{store: store}
}

func (r *Postgres) Create(ctx context.Context, t service.Tenant) error {
	err := r.store.Create(ctx, toRecord(t))
	if errors.Is(err, persistence.ErrDuplicate) {
		return service.ErrSlugTaken
	}
	return err
}

func (r *Postgres) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapErr(err)
	}
	return fromRecord(rec), nil
}

func (r *Postgres) GetBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	rec, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Tenant{}, mapErr(err)
	}
	return fromRecord(rec), nil
}

func (r *Postgres) List(ctx context.Context, statuses ...service.Status) ([]service.Tenant, error) {
	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}
	recs, err := r.store.List(ctx, raw...)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

func (r *Postgres) ListExpired(ctx context.Context, now time.Time) ([]service.Tenant, error) {
	recs, err := r.store.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

func (r *Postgres) ListSuspendedBefore(ctx context.Context, cutoff time.Time) ([]service.Tenant, error) {
	recs, err := r.store.ListSuspendedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return fromRecords(recs), nil
}

func (r *Postgres) Activate(ctx context.Context, id uuid.UUID, rootPath, configPath, namespacePrefix string) error {
	return mapErr(r.store.Activate(ctx, id, rootPath, configPath, namespacePrefix))
}

func (r *Postgres) UpdateStatus(ctx context.Context, id uuid.UUID, status service.Status, suspendedAt *time.Time, reason *string) error {
	return mapErr(r.store.UpdateStatus(ctx, id, string(status), suspendedAt, reason))
}

func (r *Postgres) UpdateExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	return mapErr(r.store.UpdateExpiry(ctx, id, expiresAt))
}

func (r *Postgres) UpdatePlan(ctx context.Context, id uuid.UUID, planID uuid.UUID) error {
	return mapErr(r.store.UpdatePlan(ctx, id, planID))
}

func (r *Postgres) MarkDeleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return mapErr(r.store.MarkDeleted(ctx, id, at))
}

func (r *Postgres) Purge(ctx context.Context, id uuid.UUID) error {
	return r.store.Purge(ctx, id)
}

func mapErr(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		ID:               t.ID,
		Slug:             t.Slug,
		Title:            t.Title,
		OwnerID:          t.OwnerID,
		PlanID:           t.PlanID,
		Status:           string(t.Status),
		NamespacePrefix:  t.NamespacePrefix,
		RootPath:         t.RootPath,
		ConfigPath:       t.ConfigPath,
		AdminEmail:       t.AdminEmail,
		AdminUsername:    t.AdminUsername,
		CreatedAt:        t.CreatedAt,
		ExpiresAt:        t.ExpiresAt,
		SuspendedAt:      t.SuspendedAt,
		SuspensionReason: t.SuspensionReason,
		DeletedAt:        t.DeletedAt,
	}
}

func fromRecord(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:               rec.ID,
		Slug:             rec.Slug,
		Title:            rec.Title,
		OwnerID:          rec.OwnerID,
		PlanID:           rec.PlanID,
		Status:           service.StatusFromString(rec.Status),
		NamespacePrefix:  rec.NamespacePrefix,
		RootPath:         rec.RootPath,
		ConfigPath:       rec.ConfigPath,
		AdminEmail:       rec.AdminEmail,
		AdminUsername:    rec.AdminUsername,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		SuspendedAt:      rec.SuspendedAt,
		SuspensionReason: rec.SuspensionReason,
		DeletedAt:        rec.DeletedAt,
	}
}

func fromRecords(recs []persistence.TenantRecord) []service.Tenant {
	out := make([]service.Tenant, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out
}

var _ service.Repository = (*Postgres)(nil)
