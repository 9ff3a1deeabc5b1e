package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	lifecycle "github.com/diploy/hostfleet/domains/lifecycle/be/service"
	monitorsvc "github.com/diploy/hostfleet/domains/monitor/be/service"
	"github.com/diploy/hostfleet/domains/tenants/be/repo"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/quota"
)

type fakeDeprovisioner struct {
	mu   sync.Mutex
	repo *repo.Memory
	ids  []uuid.UUID
	fail map[uuid.UUID]error
}

func (d *fakeDeprovisioner) Deprovision(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[id]; err != nil {
		return err
	}
	d.ids = append(d.ids, id)
	_ = d.repo.MarkDeleted(ctx, id, time.Now().UTC())
	return d.repo.Purge(ctx, id)
}

type fakeMonitor struct {
	mu        sync.Mutex
	samples   map[uuid.UUID]monitorsvc.Sample
	collected []uuid.UUID
	pruned    int64
}

func (m *fakeMonitor) Collect(_ context.Context, tenantID uuid.UUID, _ string) (monitorsvc.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collected = append(m.collected, tenantID)
	sample := m.samples[tenantID]
	sample.TenantID = tenantID
	return sample, nil
}

func (m *fakeMonitor) PruneBefore(context.Context, time.Time) (int64, error) {
	return m.pruned, nil
}

type fakePlans struct {
	mu    sync.Mutex
	plans map[uuid.UUID]quota.Plan
}

func (p *fakePlans) add(plan quota.Plan) quota.Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan.ID = uuid.New()
	p.plans[plan.ID] = plan
	return plan
}

func (p *fakePlans) Get(_ context.Context, id uuid.UUID) (quota.Plan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan, ok := p.plans[id]
	if !ok {
		return quota.Plan{}, errors.New("plan not found")
	}
	return plan, nil
}

type fakePayment struct {
	mu         sync.Mutex
	delinquent map[uuid.UUID]bool
	cancelled  []uuid.UUID
	cancelErr  error
}

func (p *fakePayment) Delinquent(_ context.Context, id uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delinquent[id], nil
}

func (p *fakePayment) Cancel(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.cancelled = append(p.cancelled, id)
	return nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []external.Notification
}

func (n *captureNotifier) Notify(_ context.Context, msg external.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) ofKind(kind string) []external.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []external.Notification
	for _, msg := range n.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

type captureProxy struct {
	mu    sync.Mutex
	modes map[string]external.ProxyMode
	fail  error
}

func (p *captureProxy) Apply(_ context.Context, slug string, mode external.ProxyMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.modes[slug] = mode
	return nil
}

type memNotifLog struct {
	mu   sync.Mutex
	sent map[uuid.UUID][]time.Time
}

func (l *memNotifLog) Record(_ context.Context, id uuid.UUID, _ string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent[id] = append(l.sent[id], at)
	return nil
}

func (l *memNotifLog) SentSince(_ context.Context, id uuid.UUID, _ string, cutoff time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, at := range l.sent[id] {
		if !at.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

type fakeBackups struct {
	mu     sync.Mutex
	due    map[uuid.UUID]bool
	made   []uuid.UUID
	pruned int
}

func (b *fakeBackups) EnsureFresh(_ context.Context, t tenantsvc.Tenant, _ quota.Plan) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.due[t.ID] {
		return false, nil
	}
	b.made = append(b.made, t.ID)
	return true, nil
}

func (b *fakeBackups) PruneExpired(context.Context, time.Time) (int, error) {
	return b.pruned, nil
}

type fixture struct {
	svc      *lifecycle.Service
	tenants  *repo.Memory
	deprov   *fakeDeprovisioner
	monitor  *fakeMonitor
	plans    *fakePlans
	payment  *fakePayment
	notifier *captureNotifier
	proxy    *captureProxy
	notifLog *memNotifLog
	backups  *fakeBackups
	locker   *lifecycle.LocalLocker
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenants := repo.NewMemory()
	f := &fixture{
		tenants:  tenants,
		deprov:   &fakeDeprovisioner{repo: tenants, fail: map[uuid.UUID]error{}},
		monitor:  &fakeMonitor{samples: map[uuid.UUID]monitorsvc.Sample{}},
		plans:    &fakePlans{plans: map[uuid.UUID]quota.Plan{}},
		payment:  &fakePayment{delinquent: map[uuid.UUID]bool{}},
		notifier: &captureNotifier{},
		proxy:    &captureProxy{modes: map[string]external.ProxyMode{}},
		notifLog: &memNotifLog{sent: map[uuid.UUID][]time.Time{}},
		backups:  &fakeBackups{due: map[uuid.UUID]bool{}},
		locker:   lifecycle.NewLocalLocker(),
		now:      time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
	}
	f.svc = lifecycle.New(lifecycle.Deps{
		Tenants:       tenants,
		Deprovisioner: f.deprov,
		Monitor:       f.monitor,
		Plans:         f.plans,
		Payment:       f.payment,
		Notifier:      f.notifier,
		Proxy:         f.proxy,
		Notifications: f.notifLog,
		Locker:        f.locker,
		Backups:       f.backups,
	}, lifecycle.Config{}, zap.NewNop()).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) addTenant(t *testing.T, slug string, status tenantsvc.Status, mutate func(*tenantsvc.Tenant)) tenantsvc.Tenant {
	t.Helper()
	tn := tenantsvc.Tenant{
		ID:              uuid.New(),
		Slug:            slug,
		Title:           slug,
		Status:          status,
		NamespacePrefix: "tenant_" + slug,
		RootPath:        filepath.Join(t.TempDir(), slug),
		AdminEmail:      slug + "@example.test",
		CreatedAt:       f.now.Add(-30 * 24 * time.Hour),
	}
	if mutate != nil {
		mutate(&tn)
	}
	require.NoError(t, f.tenants.Create(context.Background(), tn))
	return tn
}

func TestExpirySweepDeletesPastGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.now.Add(-25 * time.Hour)
	expired := f.addTenant(t, "expired", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &past
	})
	inGrace := f.now.Add(-time.Hour)
	graced := f.addTenant(t, "graced", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &inGrace
	})
	eternal := f.addTenant(t, "eternal", tenantsvc.StatusActive, nil)

	report, err := f.svc.ExpirySweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Zero(t, report.Failed)

	_, err = f.tenants.Get(ctx, expired.ID)
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
	_, err = f.tenants.Get(ctx, graced.ID)
	require.NoError(t, err)
	_, err = f.tenants.Get(ctx, eternal.ID)
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{expired.ID}, f.payment.cancelled)
	require.Equal(t, []uuid.UUID{expired.ID}, f.deprov.ids)
	require.Equal(t, external.ProxyRemoved, f.proxy.modes["expired"])
	require.Len(t, f.notifier.ofKind(external.NotifyExpiryDeleted), 1)
}

func TestExpirySweepOneFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.now.Add(-48 * time.Hour)
	doomed := f.addTenant(t, "doomed", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &past
	})
	other := f.addTenant(t, "other", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &past
	})
	f.deprov.fail[doomed.ID] = errors.New("filesystem busy")

	report, err := f.svc.ExpirySweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, 1, report.Failed)

	_, err = f.tenants.Get(ctx, other.ID)
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
	_, err = f.tenants.Get(ctx, doomed.ID)
	require.NoError(t, err)
}

func TestUnpaidSweepSuspendsDelinquents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.plans.add(quota.Plan{Slug: "pro", PriceCents: 2900, Limits: quota.Limits{CPUPercent: 75}})
	free := f.plans.add(quota.Plan{Slug: "free", IsDefault: true})

	delinquent := f.addTenant(t, "behind", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &paid.ID
	})
	current := f.addTenant(t, "current", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &paid.ID
	})
	freeloader := f.addTenant(t, "freeloader", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &free.ID
	})
	f.payment.delinquent[delinquent.ID] = true
	f.payment.delinquent[freeloader.ID] = true // free plans are never "unpaid"

	report, err := f.svc.UnpaidSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Suspended)

	got, err := f.tenants.Get(ctx, delinquent.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusSuspended, got.Status)
	require.NotNil(t, got.SuspendedAt)
	require.Equal(t, external.ProxyPlaceholder, f.proxy.modes["behind"])
	require.Len(t, f.notifier.ofKind(external.NotifySuspended), 1)

	got, err = f.tenants.Get(ctx, current.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusActive, got.Status)
	got, err = f.tenants.Get(ctx, freeloader.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusActive, got.Status)
}

func TestUnpaidSweepDeletesStaleSuspendedExceptDefaultPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.plans.add(quota.Plan{Slug: "pro", PriceCents: 2900})
	def := f.plans.add(quota.Plan{Slug: "free", IsDefault: true})

	longAgo := f.now.Add(-31 * 24 * time.Hour)
	reason := "payment overdue"
	stale := f.addTenant(t, "stale", tenantsvc.StatusSuspended, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &paid.ID
		tn.SuspendedAt = &longAgo
		tn.SuspensionReason = &reason
	})
	protected := f.addTenant(t, "protected", tenantsvc.StatusSuspended, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &def.ID
		tn.SuspendedAt = &longAgo
	})
	recent := f.now.Add(-2 * 24 * time.Hour)
	fresh := f.addTenant(t, "fresh", tenantsvc.StatusSuspended, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &paid.ID
		tn.SuspendedAt = &recent
	})

	report, err := f.svc.UnpaidSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)

	_, err = f.tenants.Get(ctx, stale.ID)
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
	_, err = f.tenants.Get(ctx, protected.ID)
	require.NoError(t, err)
	_, err = f.tenants.Get(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestUsageSweepSuspendsCriticalOverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "starter", PriceCents: 900,
		Limits: quota.Limits{CPUPercent: 50, MemoryMB: 512, StorageMB: 5000}})
	hog := f.addTenant(t, "hog", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
	})
	f.monitor.samples[hog.ID] = monitorsvc.Sample{CPUPercent: 80} // 160% of 50

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Suspended)

	got, err := f.tenants.Get(ctx, hog.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusSuspended, got.Status)
	require.NotNil(t, got.SuspensionReason)
	require.Contains(t, *got.SuspensionReason, "cpu_percent")
}

func TestUsageSweepStorageOverageWarnsButNeverSuspends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "starter", PriceCents: 900,
		Limits: quota.Limits{StorageMB: 100}})
	packrat := f.addTenant(t, "packrat", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
	})
	f.monitor.samples[packrat.ID] = monitorsvc.Sample{StorageMB: 150} // 150%, but storage is not critical

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Suspended)
	require.Equal(t, 1, report.Warned)

	got, err := f.tenants.Get(ctx, packrat.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusActive, got.Status)
}

func TestUsageSweepWarningThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "starter", PriceCents: 900,
		Limits: quota.Limits{CPUPercent: 100}})
	warm := f.addTenant(t, "warm", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
	})
	f.monitor.samples[warm.ID] = monitorsvc.Sample{CPUPercent: 95}

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Warned)

	// An hour later the tenant is still hot, but the warning stays quiet.
	f.now = f.now.Add(time.Hour)
	report, err = f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Warned)
	require.Len(t, f.notifier.ofKind(external.NotifyUsageWarning), 1)

	// Past the throttle window it fires again.
	f.now = f.now.Add(25 * time.Hour)
	report, err = f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Warned)
}

func TestUsageSweepMildWarningStaysQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "starter", PriceCents: 900,
		Limits: quota.Limits{CPUPercent: 100}})
	tepid := f.addTenant(t, "tepid", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
	})
	f.monitor.samples[tepid.ID] = monitorsvc.Sample{CPUPercent: 85} // warning level, under 90

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Sampled)
	require.Zero(t, report.Warned)
	require.Empty(t, f.notifier.ofKind(external.NotifyUsageWarning))
}

func TestUsageSweepGuestUsesGuestPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guest := f.addTenant(t, "drive-by", tenantsvc.StatusActive, nil)
	f.monitor.samples[guest.ID] = monitorsvc.Sample{CPUPercent: 20} // 200% of the guest cap of 10

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Suspended)
}

func TestSuspendAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "pro", PriceCents: 2900,
		Limits: quota.Limits{CPUPercent: 75}})
	tn := f.addTenant(t, "cycler", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
	})

	require.NoError(t, f.svc.Suspend(ctx, tn.ID, "manual review"))
	got, err := f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusSuspended, got.Status)

	// Suspending again is a no-op.
	require.NoError(t, f.svc.Suspend(ctx, tn.ID, "again"))

	// Resume refuses while usage is still over the cap.
	f.monitor.samples[tn.ID] = monitorsvc.Sample{CPUPercent: 90}
	err = f.svc.Resume(ctx, tn.ID)
	require.ErrorIs(t, err, lifecycle.ErrStillOverCap)

	// Back under the cap it goes through.
	f.monitor.samples[tn.ID] = monitorsvc.Sample{CPUPercent: 10}
	require.NoError(t, f.svc.Resume(ctx, tn.ID))
	got, err = f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusActive, got.Status)
	require.Nil(t, got.SuspendedAt)
	require.Equal(t, external.ProxyActive, f.proxy.modes["cycler"])
}

func TestDeletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tn := f.addTenant(t, "gone", tenantsvc.StatusDeleted, nil)

	require.ErrorIs(t, f.svc.Suspend(ctx, tn.ID, "too late"), lifecycle.ErrTerminal)
	require.ErrorIs(t, f.svc.Resume(ctx, tn.ID), lifecycle.ErrTerminal)
	until := f.now.Add(24 * time.Hour)
	require.ErrorIs(t, f.svc.ExtendExpiry(ctx, tn.ID, &until), lifecycle.ErrTerminal)
}

func TestExtendExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.now.Add(time.Hour)
	tn := f.addTenant(t, "extended", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &soon
	})

	later := f.now.Add(30 * 24 * time.Hour)
	require.NoError(t, f.svc.ExtendExpiry(ctx, tn.ID, &later))
	got, err := f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, later, *got.ExpiresAt)

	// Clearing the expiry makes the tenant permanent.
	require.NoError(t, f.svc.ExtendExpiry(ctx, tn.ID, nil))
	got, err = f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Nil(t, got.ExpiresAt)
}

func TestExtendExpiryRefusedWhileTenantLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.now.Add(time.Hour)
	tn := f.addTenant(t, "contended", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &soon
	})

	acquired := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.locker.WithTenantLock(ctx, tn.ID, func(context.Context) error {
			close(acquired)
			<-release
			return nil
		})
	}()
	<-acquired

	// While a sweep holds the tenant, the extension must not slip through.
	later := f.now.Add(30 * 24 * time.Hour)
	require.ErrorIs(t, f.svc.ExtendExpiry(ctx, tn.ID, &later), lifecycle.ErrLockedElsewhere)

	got, err := f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, soon, *got.ExpiresAt)

	close(release)
	<-done
	require.NoError(t, f.svc.ExtendExpiry(ctx, tn.ID, &later))
	got, err = f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, later, *got.ExpiresAt)
}

func TestUsageSweepSamplesSuspendedTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.plans.add(quota.Plan{Slug: "starter", PriceCents: 900,
		Limits: quota.Limits{CPUPercent: 50}})
	benched := f.addTenant(t, "benched", tenantsvc.StatusSuspended, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &plan.ID
		at := f.now.Add(-time.Hour)
		tn.SuspendedAt = &at
	})
	f.monitor.samples[benched.ID] = monitorsvc.Sample{CPUPercent: 100} // still far over

	report, err := f.svc.UsageSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.Equal(t, 1, report.Sampled)
	require.Zero(t, report.Suspended)
	require.Zero(t, report.Warned)
	require.Contains(t, f.monitor.collected, benched.ID)

	got, err := f.tenants.Get(ctx, benched.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusSuspended, got.Status)
	require.Empty(t, f.notifier.ofKind(external.NotifyUsageWarning))
}

func TestExpirySweepToleratesExternalFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.now.Add(-48 * time.Hour)
	tn := f.addTenant(t, "stubborn", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.ExpiresAt = &past
	})
	f.payment.cancelErr = errors.New("billing api down")
	f.proxy.fail = errors.New("edge config locked")

	report, err := f.svc.ExpirySweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Deleted)
	require.Zero(t, report.Failed)

	_, err = f.tenants.Get(ctx, tn.ID)
	require.ErrorIs(t, err, tenantsvc.ErrNotFound)
	require.Equal(t, []uuid.UUID{tn.ID}, f.deprov.ids)
}

func TestSuspendSurvivesProxyFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tn := f.addTenant(t, "edgeless", tenantsvc.StatusActive, nil)
	f.proxy.fail = errors.New("edge unreachable")

	require.NoError(t, f.svc.Suspend(ctx, tn.ID, "manual review"))
	got, err := f.tenants.Get(ctx, tn.ID)
	require.NoError(t, err)
	require.Equal(t, tenantsvc.StatusSuspended, got.Status)
}

func TestSuspendCoversEntryPointAndResumeRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tn := f.addTenant(t, "parked", tenantsvc.StatusActive, nil)
	entry := filepath.Join(tn.RootPath, "content", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(entry), 0o755))
	require.NoError(t, os.WriteFile(entry, []byte("<html>live site</html>"), 0o644))

	require.NoError(t, f.svc.Suspend(ctx, tn.ID, "payment overdue"))

	page, err := os.ReadFile(entry)
	require.NoError(t, err)
	require.Contains(t, string(page), "suspended")
	require.Contains(t, string(page), "payment overdue")

	held, err := os.ReadFile(filepath.Join(tn.RootPath, "content", "index.html.live"))
	require.NoError(t, err)
	require.Equal(t, "<html>live site</html>", string(held))

	require.NoError(t, f.svc.Resume(ctx, tn.ID))
	restored, err := os.ReadFile(entry)
	require.NoError(t, err)
	require.Equal(t, "<html>live site</html>", string(restored))
	_, err = os.Stat(filepath.Join(tn.RootPath, "content", "index.html.live"))
	require.True(t, os.IsNotExist(err))
}

func TestUnpaidSweepKeepsStalePlanlessTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longAgo := f.now.Add(-40 * 24 * time.Hour)
	guest := f.addTenant(t, "wanderer", tenantsvc.StatusSuspended, func(tn *tenantsvc.Tenant) {
		tn.SuspendedAt = &longAgo
	})

	report, err := f.svc.UnpaidSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Deleted)
	require.Equal(t, 1, report.Skipped)

	_, err = f.tenants.Get(ctx, guest.ID)
	require.NoError(t, err)
}

func TestBackupSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withBackups := f.plans.add(quota.Plan{Slug: "pro", PriceCents: 2900, HasBackups: true,
		Limits: quota.Limits{BackupFrequencyHours: 12, BackupRetentionDays: 30}})
	without := f.plans.add(quota.Plan{Slug: "free", IsDefault: true})

	due := f.addTenant(t, "due", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &withBackups.ID
	})
	f.addTenant(t, "fresh", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &withBackups.ID
	})
	f.addTenant(t, "planless", tenantsvc.StatusActive, func(tn *tenantsvc.Tenant) {
		tn.PlanID = &without.ID
	})
	f.backups.due[due.ID] = true
	f.backups.pruned = 3

	report, err := f.svc.BackupSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.BackedUp)
	require.Equal(t, int64(3), report.Pruned)
	require.Equal(t, []uuid.UUID{due.ID}, f.backups.made)
}
