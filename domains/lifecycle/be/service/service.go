// Package service implements the tenant lifecycle state machine and the
// periodic reconciliation sweeps that drive it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	monitorsvc "github.com/diploy/hostfleet/domains/monitor/be/service"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/persistence"
	"github.com/diploy/hostfleet/platform/go/quota"
)

var (
	ErrTerminal        = errors.New("tenant is deleted")
	ErrNotSuspended    = errors.New("tenant is not suspended")
	ErrStillOverCap    = errors.New("tenant usage still exceeds plan limits")
	ErrLockedElsewhere = errors.New("tenant is being processed by another worker")
)

// Locker serializes per-tenant lifecycle transitions across workers.
type Locker interface {
	// WithTenantLock runs fn under the tenant's lock. held=false means
	// another worker owns the tenant right now and fn did not run.
	WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) (held bool, err error)
}

// PGLocker backs Locker with Postgres advisory locks, giving mutual
// exclusion across processes sharing the control database.
type PGLocker struct {
	pool *pgxpool.Pool
}

func NewPGLocker(pool *pgxpool.Pool) *PGLocker {
	if pool == nil {
		panic("locker requires a pool")
	}
	return &PGLocker{pool: pool}
}

func (l *PGLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) (bool, error) {
	return persistence.WithTenantLock(ctx, l.pool, tenantID, fn)
}

// LocalLocker is a single-process Locker for tests and local tooling.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[uuid.UUID]bool{}}
}

func (l *LocalLocker) WithTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) (bool, error) {
	l.mu.Lock()
	if l.held[tenantID] {
		l.mu.Unlock()
		return false, nil
	}
	l.held[tenantID] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, tenantID)
		l.mu.Unlock()
	}()
	return true, fn(ctx)
}

// Deprovisioner tears tenant environments down. Satisfied by the tenants
// service.
type Deprovisioner interface {
	Deprovision(ctx context.Context, id uuid.UUID) error
}

// Monitor is the slice of the resource monitor the sweeps consume.
type Monitor interface {
	Collect(ctx context.Context, tenantID uuid.UUID, rootPath string) (monitorsvc.Sample, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PlanCatalog resolves the quota plan a tenant is on.
type PlanCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (quota.Plan, error)
}

// NotificationLog throttles repeated tenant notifications.
type NotificationLog interface {
	Record(ctx context.Context, tenantID uuid.UUID, kind string, at time.Time) error
	SentSince(ctx context.Context, tenantID uuid.UUID, kind string, cutoff time.Time) (bool, error)
}

// Config tunes the sweeps.
type Config struct {
	// GracePeriod extends a tenant's expiry before the expiry sweep
	// deletes it.
	GracePeriod time.Duration
	// SuspendedRetention bounds how long a suspended tenant survives
	// before auto-delete. Default-plan tenants are exempt.
	SuspendedRetention time.Duration
	// SampleRetention bounds the usage sample history.
	SampleRetention time.Duration
	// WarnThrottle is the minimum gap between usage warnings per tenant.
	WarnThrottle time.Duration
	// Concurrency bounds how many tenants one sweep touches in parallel.
	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 24 * time.Hour
	}
	if c.SuspendedRetention <= 0 {
		c.SuspendedRetention = 30 * 24 * time.Hour
	}
	if c.SampleRetention <= 0 {
		c.SampleRetention = 30 * 24 * time.Hour
	}
	if c.WarnThrottle <= 0 {
		c.WarnThrottle = 24 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Deps bundles the collaborators the lifecycle service drives.
type Deps struct {
	Tenants       tenantsvc.Repository
	Deprovisioner Deprovisioner
	Monitor       Monitor
	Plans         PlanCatalog
	Payment       external.PaymentSignal
	Notifier      external.Notifier
	Proxy         external.ProxyConfigurer
	Notifications NotificationLog
	Locker        Locker
	Backups       BackupRunner
}

// BackupRunner is the slice of the backup service the backup sweep
// drives.
type BackupRunner interface {
	// EnsureFresh creates a backup when the tenant's latest one is older
	// than the plan's cadence. Returns whether a backup was created.
	EnsureFresh(ctx context.Context, t tenantsvc.Tenant, plan quota.Plan) (bool, error)
	// PruneExpired removes archives past their retention window.
	PruneExpired(ctx context.Context, now time.Time) (int, error)
}

// Service owns tenant lifecycle transitions and the reconciliation
// sweeps.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if deps.Tenants == nil || deps.Deprovisioner == nil || deps.Monitor == nil ||
		deps.Plans == nil || deps.Payment == nil || deps.Notifier == nil ||
		deps.Proxy == nil || deps.Notifications == nil || deps.Locker == nil ||
		deps.Backups == nil {
		panic("lifecycle deps are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	cfg.applyDefaults()
	return &Service{deps: deps, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Suspend moves an active tenant to suspended, points its hostname at the
// placeholder page, and notifies the owner.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, reason string) error {
	held, err := s.deps.Locker.WithTenantLock(ctx, id, func(ctx context.Context) error {
		return s.suspendLocked(ctx, id, reason)
	})
	if err != nil {
		return err
	}
	if !held {
		return ErrLockedElsewhere
	}
	return nil
}

func (s *Service) suspendLocked(ctx context.Context, id uuid.UUID, reason string) error {
	t, err := s.deps.Tenants.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.Status {
	case tenantsvc.StatusDeleted:
		return ErrTerminal
	case tenantsvc.StatusSuspended:
		return nil // already there
	}

	now := s.now().UTC()
	if err := s.deps.Tenants.UpdateStatus(ctx, id, tenantsvc.StatusSuspended, &now, &reason); err != nil {
		return err
	}

	// The entry-point page and the proxy flip are collaborators outside
	// the control database; their failures are logged, never fatal.
	if t.RootPath != "" {
		if err := writePlaceholder(t.RootPath, reason); err != nil {
			s.logger.Warn("write suspension placeholder",
				zap.String("tenant_id", id.String()), zap.Error(err))
		}
	}
	if err := s.deps.Proxy.Apply(ctx, t.Slug, external.ProxyPlaceholder); err != nil {
		s.logger.Warn("apply placeholder routing",
			zap.String("tenant_id", id.String()), zap.Error(err))
	}
	if err := s.deps.Notifier.Notify(ctx, external.Notification{
		TenantID: id,
		Email:    t.AdminEmail,
		Kind:     external.NotifySuspended,
		Subject:  "Your site has been suspended",
		Body:     reason,
	}); err != nil {
		s.logger.Warn("notify suspension", zap.String("tenant_id", id.String()), zap.Error(err))
	}

	s.logger.Info("tenant suspended",
		zap.String("tenant_id", id.String()),
		zap.String("slug", t.Slug),
		zap.String("reason", reason))
	return nil
}

// Resume reactivates a suspended tenant, but only when its latest usage
// is back inside plan limits.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	held, err := s.deps.Locker.WithTenantLock(ctx, id, func(ctx context.Context) error {
		return s.resumeLocked(ctx, id)
	})
	if err != nil {
		return err
	}
	if !held {
		return ErrLockedElsewhere
	}
	return nil
}

func (s *Service) resumeLocked(ctx context.Context, id uuid.UUID) error {
	t, err := s.deps.Tenants.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.Status {
	case tenantsvc.StatusDeleted:
		return ErrTerminal
	case tenantsvc.StatusActive:
		return nil
	case tenantsvc.StatusProvisioning:
		return ErrNotSuspended
	}

	limits, _, err := s.limitsFor(ctx, t)
	if err != nil {
		return err
	}
	sample, err := s.deps.Monitor.Collect(ctx, id, t.RootPath)
	if err != nil {
		return fmt.Errorf("sample usage before resume: %w", err)
	}
	for _, v := range monitorsvc.CheckLimits(sample, limits) {
		if v.Level == monitorsvc.LevelViolation {
			return fmt.Errorf("%w: %s at %.0f%%", ErrStillOverCap, v.Resource, v.Percent)
		}
	}

	if err := s.deps.Tenants.UpdateStatus(ctx, id, tenantsvc.StatusActive, nil, nil); err != nil {
		return err
	}
	if t.RootPath != "" {
		if err := restoreEntryPoint(t.RootPath); err != nil {
			s.logger.Warn("restore entry point",
				zap.String("tenant_id", id.String()), zap.Error(err))
		}
	}
	if err := s.deps.Proxy.Apply(ctx, t.Slug, external.ProxyActive); err != nil {
		s.logger.Warn("apply active routing",
			zap.String("tenant_id", id.String()), zap.Error(err))
	}

	s.logger.Info("tenant resumed", zap.String("tenant_id", id.String()), zap.String("slug", t.Slug))
	return nil
}

// ExtendExpiry pushes a tenant's expiry out, or clears it entirely with a
// nil until. Runs under the tenant lock so it cannot interleave with a
// sweep deciding the same tenant's fate.
func (s *Service) ExtendExpiry(ctx context.Context, id uuid.UUID, until *time.Time) error {
	held, err := s.deps.Locker.WithTenantLock(ctx, id, func(ctx context.Context) error {
		t, err := s.deps.Tenants.Get(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == tenantsvc.StatusDeleted {
			return ErrTerminal
		}
		return s.deps.Tenants.UpdateExpiry(ctx, id, until)
	})
	if err != nil {
		return err
	}
	if !held {
		return ErrLockedElsewhere
	}
	return nil
}

// limitsFor resolves the quota limits a tenant is held to. Tenants with
// no plan run on the fixed guest policy.
func (s *Service) limitsFor(ctx context.Context, t tenantsvc.Tenant) (quota.Limits, *quota.Plan, error) {
	if t.PlanID == nil {
		return quota.GuestLimits(), nil, nil
	}
	plan, err := s.deps.Plans.Get(ctx, *t.PlanID)
	if err != nil {
		return quota.Limits{}, nil, fmt.Errorf("resolve plan for %s: %w", t.ID, err)
	}
	return plan.Limits, &plan, nil
}

// Report tallies what one sweep pass did.
type Report struct {
	Processed int
	Deleted   int
	Suspended int
	Warned    int
	Sampled   int
	BackedUp  int
	Pruned    int64
	Skipped   int
	Failed    int
}

func (r Report) zapFields(sweep string) []zap.Field {
	return []zap.Field{
		zap.String("sweep", sweep),
		zap.Int("processed", r.Processed),
		zap.Int("deleted", r.Deleted),
		zap.Int("suspended", r.Suspended),
		zap.Int("warned", r.Warned),
		zap.Int("sampled", r.Sampled),
		zap.Int("backed_up", r.BackedUp),
		zap.Int64("pruned", r.Pruned),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
	}
}
