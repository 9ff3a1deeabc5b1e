// Package wiring assembles the service graph the CLI commands share.
// Each command builds exactly what it needs through one entry point so
// the flag surface stays consistent across subcommands.
package wiring

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	backupsservice "github.com/diploy/hostfleet/domains/backups/be/service"
	lifecycleservice "github.com/diploy/hostfleet/domains/lifecycle/be/service"
	monitorrepo "github.com/diploy/hostfleet/domains/monitor/be/repo"
	monitorservice "github.com/diploy/hostfleet/domains/monitor/be/service"
	tenantsprov "github.com/diploy/hostfleet/domains/tenants/be/provisioning"
	tenantsrepo "github.com/diploy/hostfleet/domains/tenants/be/repo"
	tenantsservice "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	platformlogging "github.com/diploy/hostfleet/platform/go/logging"
	"github.com/diploy/hostfleet/platform/go/persistence"
)

// Options carries the connection and layout settings shared by every
// CLI command. Blank fields fall back to environment variables.
type Options struct {
	DatabaseURL string
	TenantsDir  string
	Domain      string
	Protocol    string
	LogLevel    string
}

func (o *Options) applyEnv() error {
	if o.DatabaseURL == "" {
		o.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if o.DatabaseURL == "" {
		return fmt.Errorf("database URL required (flag --database-url or DATABASE_URL)")
	}
	if o.TenantsDir == "" {
		o.TenantsDir = envOr("TENANTS_DIR", "/var/lib/hostfleet/tenants")
	}
	if o.Domain == "" {
		o.Domain = envOr("TENANT_DOMAIN", "localhost")
	}
	if o.Protocol == "" {
		o.Protocol = envOr("TENANT_PROTOCOL", "https")
	}
	if o.LogLevel == "" {
		o.LogLevel = envOr("LOG_LEVEL", "warn")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Services is the assembled graph. Close releases the pool.
type Services struct {
	Logger    *zap.Logger
	Pool      *pgxpool.Pool
	Plans     *persistence.PlanStore
	Tenants   *tenantsservice.Service
	Monitor   *monitorservice.Service
	Backups   *backupsservice.Service
	Lifecycle *lifecycleservice.Service
}

// Build connects to the control database, applies the bootstrap DDL,
// and assembles the full service graph.
func Build(ctx context.Context, opts Options) (*Services, func(), error) {
	if err := opts.applyEnv(); err != nil {
		return nil, nil, err
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     opts.LogLevel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: opts.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	if err := persistence.Bootstrap(ctx, pool); err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("bootstrap control schema: %w", err)
	}

	planStore := persistence.NewPlanStore(pool)
	tenantRepo := tenantsrepo.NewPostgres(persistence.NewTenantStore(pool))

	tenants := tenantsservice.New(
		tenantRepo,
		planStore,
		tenantsservice.ProvisioningDeps{
			Schema:     tenantsprov.NewSchemaProvisioner(pool),
			Storage:    tenantsprov.NewFSProvisioner(opts.TenantsDir),
			Seeder:     tenantsprov.NewSeeder(pool),
			Namespaces: persistence.NewNamespaceStore(pool),
		},
		tenantsservice.Config{
			Protocol: opts.Protocol,
			Domain:   opts.Domain,
		},
		logger,
	)

	monitor := monitorservice.New(
		monitorrepo.NewPostgres(persistence.NewUsageStore(pool)),
		monitorservice.NewActivityEstimator(),
		monitorservice.NewAccessLogReader(),
		logger,
	)

	backups := backupsservice.New(
		persistence.NewBackupStore(pool),
		backupsservice.NewPGDump(opts.DatabaseURL),
		nil,
		logger,
	)

	lifecycle := lifecycleservice.New(lifecycleservice.Deps{
		Tenants:       tenantRepo,
		Deprovisioner: tenants,
		Monitor:       monitor,
		Plans:         planStore,
		Payment:       external.NoopPayment{},
		Notifier:      external.LogNotifier{Logger: logger},
		Proxy:         external.NoopProxy{},
		Notifications: persistence.NewNotificationStore(pool),
		Locker:        lifecycleservice.NewPGLocker(pool),
		Backups:       backups,
	}, lifecycleservice.Config{}, logger)

	cleanup := func() {
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}
	return &Services{
		Logger:    logger,
		Pool:      pool,
		Plans:     planStore,
		Tenants:   tenants,
		Monitor:   monitor,
		Backups:   backups,
		Lifecycle: lifecycle,
	}, cleanup, nil
}

// RegisterFlags attaches the shared connection flags to a command.
func RegisterFlags(flags FlagSet, opts *Options) {
	flags.StringVar(&opts.DatabaseURL, "database-url", "", "control database URL (defaults to DATABASE_URL)")
	flags.StringVar(&opts.TenantsDir, "tenants-dir", "", "tenant filesystem root (defaults to TENANTS_DIR)")
	flags.StringVar(&opts.Domain, "domain", "", "apex domain tenants hang off of (defaults to TENANT_DOMAIN)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (defaults to LOG_LEVEL or warn)")
}

// FlagSet is the subset of pflag.FlagSet the wiring needs.
type FlagSet interface {
	StringVar(p *string, name, value, usage string)
}
