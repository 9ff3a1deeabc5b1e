package persistence

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/diploy/hostfleet/platform/go/quota"
)

// mustTestPool connects to the database named by TEST_DATABASE_URL and
// applies the control schema. Tests are skipped when the variable is unset
// so the suite stays runnable without a local Postgres.
func mustTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok || url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Bootstrap(ctx, pool))
	return pool
}

func newTestTenant(slug string) TenantRecord {
	return TenantRecord{
		ID:              uuid.New(),
		Slug:            slug,
		Title:           "Test " + slug,
		Status:          "provisioning",
		NamespacePrefix: "tenant_" + slug,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestTenantStoreRoundTrip(t *testing.T) {
	pool := mustTestPool(t)
	store := NewTenantStore(pool)
	ctx := context.Background()

	slug := "rt-" + uuid.NewString()[:8]
	rec := newTestTenant(slug)
	require.NoError(t, store.Create(ctx, rec))
	t.Cleanup(func() { _ = store.Purge(ctx, rec.ID) })

	got, err := store.GetBySlug(ctx, slug)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "provisioning", got.Status)
	require.Nil(t, got.ExpiresAt)

	require.NoError(t, store.UpdateStatus(ctx, rec.ID, "active", nil, nil))
	got, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "active", got.Status)
}

func TestTenantStoreDuplicateSlug(t *testing.T) {
	pool := mustTestPool(t)
	store := NewTenantStore(pool)
	ctx := context.Background()

	slug := "dup-" + uuid.NewString()[:8]
	first := newTestTenant(slug)
	require.NoError(t, store.Create(ctx, first))
	t.Cleanup(func() { _ = store.Purge(ctx, first.ID) })

	second := newTestTenant(slug)
	err := store.Create(ctx, second)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestTenantStoreListExpiredSkipsNullExpiry(t *testing.T) {
	pool := mustTestPool(t)
	store := NewTenantStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	eternal := newTestTenant("et-" + uuid.NewString()[:8])
	eternal.Status = "active"
	require.NoError(t, store.Create(ctx, eternal))
	t.Cleanup(func() { _ = store.Purge(ctx, eternal.ID) })

	past := now.Add(-time.Hour)
	expired := newTestTenant("ex-" + uuid.NewString()[:8])
	expired.Status = "active"
	expired.ExpiresAt = &past
	require.NoError(t, store.Create(ctx, expired))
	t.Cleanup(func() { _ = store.Purge(ctx, expired.ID) })

	got, err := store.ListExpired(ctx, now)
	require.NoError(t, err)

	ids := map[uuid.UUID]bool{}
	for _, rec := range got {
		ids[rec.ID] = true
	}
	require.True(t, ids[expired.ID])
	require.False(t, ids[eternal.ID])
}

func TestNamespaceStoreNeverReissues(t *testing.T) {
	pool := mustTestPool(t)
	store := NewNamespaceStore(pool)
	ctx := context.Background()

	prefix := "tenant_ns_" + uuid.NewString()[:8]
	require.NoError(t, store.Reserve(ctx, prefix, uuid.New()))

	err := store.Reserve(ctx, prefix, uuid.New())
	require.ErrorIs(t, err, ErrDuplicate)

	// Even a different tenant never gets the prefix back.
	err = store.Reserve(ctx, prefix, uuid.New())
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestPlanStoreSeedIsIdempotent(t *testing.T) {
	pool := mustTestPool(t)
	store := NewPlanStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, quota.DefaultPlans()))
	require.NoError(t, store.Seed(ctx, quota.DefaultPlans()))

	def, err := store.GetDefault(ctx)
	require.NoError(t, err)
	require.Equal(t, "free", def.Slug)
	require.True(t, def.IsDefault)

	pro, err := store.GetBySlug(ctx, "pro")
	require.NoError(t, err)
	require.True(t, pro.HasBackups)
	require.InDelta(t, 75, pro.Limits.CPUPercent, 0.001)
}

func TestUsageStoreRangeAndPrune(t *testing.T) {
	pool := mustTestPool(t)
	tenants := NewTenantStore(pool)
	usage := NewUsageStore(pool)
	ctx := context.Background()

	rec := newTestTenant("us-" + uuid.NewString()[:8])
	require.NoError(t, tenants.Create(ctx, rec))
	t.Cleanup(func() { _ = tenants.Purge(ctx, rec.ID) })

	now := time.Now().UTC()
	for i, age := range []time.Duration{48 * time.Hour, 2 * time.Hour, 5 * time.Minute} {
		require.NoError(t, usage.Insert(ctx, UsageSample{
			TenantID:   rec.ID,
			SampledAt:  now.Add(-age),
			CPUPercent: float64(10 * (i + 1)),
		}))
	}

	recent, err := usage.Range(ctx, rec.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)

	latest, err := usage.Latest(ctx, rec.ID)
	require.NoError(t, err)
	require.InDelta(t, 30, latest.CPUPercent, 0.001)

	_, err = usage.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)

	all, err := usage.Range(ctx, rec.ID, now.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestWithTenantLockIsExclusive(t *testing.T) {
	pool := mustTestPool(t)
	ctx := context.Background()
	tenantID := uuid.New()

	inner := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := WithTenantLock(ctx, pool, tenantID, func(context.Context) error {
			close(inner)
			<-release
			return nil
		})
		done <- err
	}()

	<-inner
	held, err := WithTenantLock(ctx, pool, tenantID, func(context.Context) error {
		t.Error("second worker entered the critical section")
		return nil
	})
	require.NoError(t, err)
	require.False(t, held)

	close(release)
	require.NoError(t, <-done)

	held, err = WithTenantLock(ctx, pool, tenantID, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, held)
}

func TestNotificationThrottleWindow(t *testing.T) {
	pool := mustTestPool(t)
	tenants := NewTenantStore(pool)
	notifs := NewNotificationStore(pool)
	ctx := context.Background()

	rec := newTestTenant("nt-" + uuid.NewString()[:8])
	require.NoError(t, tenants.Create(ctx, rec))
	t.Cleanup(func() { _ = tenants.Purge(ctx, rec.ID) })

	now := time.Now().UTC()
	sent, err := notifs.SentSince(ctx, rec.ID, "usage_warning", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.False(t, sent)

	require.NoError(t, notifs.Record(ctx, rec.ID, "usage_warning", now.Add(-2*time.Hour)))
	sent, err = notifs.SentSince(ctx, rec.ID, "usage_warning", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.True(t, sent)

	sent, err = notifs.SentSince(ctx, rec.ID, "usage_warning", now.Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, sent)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	pool := mustTestPool(t)
	store := NewTenantStore(pool)

	_, err := store.Get(context.Background(), uuid.New())
	require.True(t, errors.Is(err, ErrNotFound))
}
