package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diploy/hostfleet/platform/go/metrics"
	"github.com/diploy/hostfleet/platform/go/persistence"
	"github.com/diploy/hostfleet/platform/go/quota"
	"github.com/diploy/hostfleet/platform/go/schema"
	"github.com/diploy/hostfleet/platform/go/secrets"
	"github.com/diploy/hostfleet/platform/go/tenant"
)

// ErrInvalidSlug wraps slug validation failures.
var ErrInvalidSlug = errors.New("invalid tenant slug")

// PlanCatalog resolves quota plans for new tenants.
type PlanCatalog interface {
	Get(ctx context.Context, id uuid.UUID) (quota.Plan, error)
	GetBySlug(ctx context.Context, slug string) (quota.Plan, error)
	GetDefault(ctx context.Context) (quota.Plan, error)
}

// Config carries the deployment-level settings Provision bakes into new
// tenants.
type Config struct {
	Protocol     string // "http" | "https"
	Domain       string // apex domain tenants hang off of
	DatabaseHost string
	DatabasePort int
	DatabaseName string
	DatabaseUser string

	// GuestTTL bounds unclaimed guest tenants; FreeTTL bounds owned
	// tenants on the zero-cost plan. Paid tenants carry no expiry.
	GuestTTL time.Duration
	FreeTTL  time.Duration

	// ProvisionTimeout caps one full provisioning run end to end.
	ProvisionTimeout time.Duration

	Debug bool
}

func (c *Config) applyDefaults() {
	if c.Protocol == "" {
		c.Protocol = "https"
	}
	if c.GuestTTL <= 0 {
		c.GuestTTL = 24 * time.Hour
	}
	if c.FreeTTL <= 0 {
		c.FreeTTL = 7 * 24 * time.Hour
	}
	if c.ProvisionTimeout <= 0 {
		c.ProvisionTimeout = 2 * time.Minute
	}
	if c.DatabasePort == 0 {
		c.DatabasePort = 5432
	}
}

// Service provides tenant registry and provisioning operations.
type Service struct {
	repo   Repository
	plans  PlanCatalog
	deps   ProvisioningDeps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, plans PlanCatalog, deps ProvisioningDeps, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if plans == nil {
		panic("plan catalog is required")
	}
	if deps.Schema == nil || deps.Storage == nil || deps.Seeder == nil || deps.Namespaces == nil {
		panic("provisioning deps are required")
	}
	if cfg.Domain == "" {
		panic("domain is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	cfg.applyDefaults()
	return &Service{repo: repo, plans: plans, deps: deps, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProvisionParams is the request to create and provision a tenant.
type ProvisionParams struct {
	Slug          string
	Title         string
	OwnerID       *uuid.UUID // nil for guest tenants
	PlanID        *uuid.UUID // nil picks the default plan for owned tenants
	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

// Provision runs the full provisioning workflow. On any step failure the
// already completed steps are rolled back in reverse order and no tenant
// row survives.
func (s *Service) Provision(ctx context.Context, params ProvisionParams) (Tenant, error) {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProvisionTimeout)
	defer cancel()

	slug, err := tenant.NormalizeSlug(params.Slug)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %s", ErrInvalidSlug, err)
	}

	plan, err := s.resolvePlan(ctx, params)
	if err != nil {
		return Tenant{}, err
	}

	id := uuid.New()
	now := started.UTC()
	t := Tenant{
		ID:            id,
		Slug:          slug,
		Title:         params.Title,
		OwnerID:       params.OwnerID,
		Status:        StatusProvisioning,
		AdminEmail:    params.AdminEmail,
		AdminUsername: params.AdminUsername,
		CreatedAt:     now,
		ExpiresAt:     s.initialExpiry(now, params.OwnerID, plan),
	}
	if plan != nil {
		planID := plan.ID
		t.PlanID = &planID
	}
	if t.Title == "" {
		t.Title = slug
	}
	if t.AdminUsername == "" {
		t.AdminUsername = "admin"
	}

	log := s.logger.With(zap.String("tenant_id", id.String()), zap.String("slug", slug))

	// Step 1: reserve the registry row. The slug uniqueness constraint is
	// what serializes concurrent claims of the same slug.
	t.NamespacePrefix = tenant.BuildNamespacePrefix(slug)
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return Tenant{}, ErrSlugTaken
		}
		return Tenant{}, fmt.Errorf("%w: %s", ErrReserveFailure, err)
	}

	var undo []func(context.Context)
	fail := func(stage error, cause error) (Tenant, error) {
		log.Error("provisioning failed, rolling back",
			zap.String("stage", stage.Error()), zap.Error(cause))
		s.rollback(undo)
		metrics.ProvisioningTotal.WithLabelValues("rolled_back").Inc()
		return Tenant{}, fmt.Errorf("%w: %s", stage, cause)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.repo.Purge(ctx, id); err != nil {
			log.Warn("rollback: purge tenant row", zap.Error(err))
		}
	})

	// Step 2: claim a namespace. The registry is append-only, so a prefix
	// used by any tenant ever, including deleted ones, forces a suffixed
	// variant.
	prefix, err := s.claimNamespace(ctx, t.NamespacePrefix, id)
	if err != nil {
		return fail(ErrReserveFailure, err)
	}
	t.NamespacePrefix = prefix

	// Step 3: directory tree.
	rootPath, err := s.deps.Storage.EnsureDirs(ctx, slug)
	if err != nil {
		return fail(ErrStorageFailure, err)
	}
	t.RootPath = rootPath
	undo = append(undo, func(ctx context.Context) {
		if err := s.deps.Storage.Teardown(ctx, slug); err != nil {
			log.Warn("rollback: storage teardown", zap.Error(err))
		}
	})

	// Step 4: config artifact with fresh key material.
	keys, err := secrets.NewKeySet()
	if err != nil {
		return fail(ErrConfigFailure, err)
	}
	body, err := schema.RenderConfig(schema.ConfigParams{
		Slug:            slug,
		NamespacePrefix: prefix,
		BaseURL:         tenant.BuildBaseURL(s.cfg.Protocol, slug, s.cfg.Domain),
		DatabaseHost:    s.cfg.DatabaseHost,
		DatabasePort:    s.cfg.DatabasePort,
		DatabaseName:    s.cfg.DatabaseName,
		DatabaseUser:    s.cfg.DatabaseUser,
		AuthKeys:        keys,
		Debug:           s.cfg.Debug,
	}, secrets.AuthKeyNames)
	if err != nil {
		return fail(ErrConfigFailure, err)
	}
	configPath, err := s.deps.Storage.WriteConfig(ctx, slug, body)
	if err != nil {
		return fail(ErrConfigFailure, err)
	}
	t.ConfigPath = configPath

	// Step 5: namespaced table set.
	if err := s.deps.Schema.Ensure(ctx, prefix); err != nil {
		return fail(ErrSchemaFailure, err)
	}
	undo = append(undo, func(ctx context.Context) {
		if err := s.deps.Schema.Teardown(ctx, prefix); err != nil {
			log.Warn("rollback: schema teardown", zap.Error(err))
		}
	})

	// Step 6: initial content.
	if err := s.deps.Seeder.Seed(ctx, prefix, SeedParams{
		Title:         t.Title,
		BaseURL:       tenant.BuildBaseURL(s.cfg.Protocol, slug, s.cfg.Domain),
		AdminUsername: t.AdminUsername,
		AdminEmail:    t.AdminEmail,
		AdminPassword: params.AdminPassword,
	}); err != nil {
		return fail(ErrSeedFailure, err)
	}

	// Step 7: activate.
	if err := s.repo.Activate(ctx, id, rootPath, configPath, prefix); err != nil {
		return fail(ErrReserveFailure, err)
	}
	t.Status = StatusActive

	metrics.ProvisioningTotal.WithLabelValues("provisioned").Inc()
	metrics.ProvisioningDuration.Observe(s.now().Sub(started).Seconds())
	log.Info("tenant provisioned",
		zap.String("namespace_prefix", prefix),
		zap.Duration("took", s.now().Sub(started)))
	return t, nil
}

func (s *Service) resolvePlan(ctx context.Context, params ProvisionParams) (*quota.Plan, error) {
	if params.OwnerID == nil {
		// Guest tenants run on the fixed guest policy, not a plan.
		return nil, nil
	}
	if params.PlanID != nil {
		plan, err := s.plans.Get(ctx, *params.PlanID)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve plan: %w", err)
		}
		return &plan, nil
	}
	plan, err := s.plans.GetDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve default plan: %w", err)
	}
	return &plan, nil
}

// initialExpiry applies the retention policy for fresh tenants: guests get
// a short claim window, free-plan tenants a trial window, paid tenants no
// expiry at all.
func (s *Service) initialExpiry(now time.Time, ownerID *uuid.UUID, plan *quota.Plan) *time.Time {
	if ownerID == nil {
		at := now.Add(s.cfg.GuestTTL)
		return &at
	}
	if plan == nil {
		return nil
	}
	if plan.TrialDays > 0 {
		at := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		return &at
	}
	if plan.IsFree() {
		at := now.Add(s.cfg.FreeTTL)
		return &at
	}
	return nil
}

// claimNamespace reserves the base prefix, falling back to a suffixed
// variant when the base was issued at any point in the past.
func (s *Service) claimNamespace(ctx context.Context, base string, id uuid.UUID) (string, error) {
	err := s.deps.Namespaces.Reserve(ctx, base, id)
	if err == nil {
		return base, nil
	}
	if !errors.Is(err, persistence.ErrDuplicate) {
		return "", err
	}

	suffixed := tenant.SuffixNamespace(base, id)
	if err := s.deps.Namespaces.Reserve(ctx, suffixed, id); err != nil {
		return "", err
	}
	return suffixed, nil
}

func (s *Service) rollback(undo []func(context.Context)) {
	// Compensations run against a fresh context so a canceled or expired
	// provisioning context cannot strand half-built state.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i](ctx)
	}
}

// Deprovision tears down a tenant's schema and storage and removes its
// registry row. Safe to call repeatedly; a missing tenant is a no-op.
func (s *Service) Deprovision(ctx context.Context, id uuid.UUID) error {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load tenant for deprovision: %w", err)
	}

	log := s.logger.With(zap.String("tenant_id", id.String()), zap.String("slug", t.Slug))

	if err := s.deps.Schema.Teardown(ctx, t.NamespacePrefix); err != nil {
		return fmt.Errorf("teardown schema: %w", err)
	}
	if err := s.deps.Storage.Teardown(ctx, t.Slug); err != nil {
		return fmt.Errorf("teardown storage: %w", err)
	}
	if err := s.repo.MarkDeleted(ctx, id, s.now().UTC()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("mark tenant deleted: %w", err)
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return fmt.Errorf("purge tenant row: %w", err)
	}

	log.Info("tenant deprovisioned")
	return nil
}
