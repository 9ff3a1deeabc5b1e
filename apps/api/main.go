package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	backupshandler "github.com/diploy/hostfleet/domains/backups/be/handler"
	backupsservice "github.com/diploy/hostfleet/domains/backups/be/service"
	lifecyclehandler "github.com/diploy/hostfleet/domains/lifecycle/be/handler"
	lifecycleservice "github.com/diploy/hostfleet/domains/lifecycle/be/service"
	monitorhandler "github.com/diploy/hostfleet/domains/monitor/be/handler"
	monitorrepo "github.com/diploy/hostfleet/domains/monitor/be/repo"
	monitorservice "github.com/diploy/hostfleet/domains/monitor/be/service"
	tenantshandler "github.com/diploy/hostfleet/domains/tenants/be/handler"
	tenantsprov "github.com/diploy/hostfleet/domains/tenants/be/provisioning"
	tenantsrepo "github.com/diploy/hostfleet/domains/tenants/be/repo"
	tenantsservice "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/jobs"
	platformlogging "github.com/diploy/hostfleet/platform/go/logging"
	"github.com/diploy/hostfleet/platform/go/persistence"
	"github.com/diploy/hostfleet/platform/go/quota"
	"github.com/diploy/hostfleet/platform/go/ratelimit"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	Protocol   string `env:"TENANT_PROTOCOL" envDefault:"https"`
	Domain     string `env:"TENANT_DOMAIN,required"`
	TenantsDir string `env:"TENANTS_DIR" envDefault:"/var/lib/hostfleet/tenants"`
	Debug      bool   `env:"DEBUG" envDefault:"false"`

	DatabaseHost string `env:"TENANT_DB_HOST" envDefault:"localhost"`
	DatabasePort int    `env:"TENANT_DB_PORT" envDefault:"5432"`
	DatabaseName string `env:"TENANT_DB_NAME" envDefault:"hostfleet"`
	DatabaseUser string `env:"TENANT_DB_USER" envDefault:"hostfleet"`

	LoadEstimator string `env:"LOAD_ESTIMATOR" envDefault:"activity"` // activity | host

	ArchiveBackend  string `env:"ARCHIVE_BACKEND" envDefault:"none"` // gcs | local | none
	ArchiveBucket   string `env:"ARCHIVE_BUCKET"`                    // required when ARCHIVE_BACKEND=gcs
	ArchivePrefix   string `env:"ARCHIVE_PREFIX" envDefault:"backups"`
	ArchiveLocalDir string `env:"ARCHIVE_LOCAL_DIR" envDefault:"./.data/archives"`

	SweepsEnabled  bool          `env:"SWEEPS_ENABLED" envDefault:"true"`
	ExpiryInterval time.Duration `env:"SWEEP_EXPIRY_INTERVAL" envDefault:"1h"`
	UnpaidInterval time.Duration `env:"SWEEP_UNPAID_INTERVAL" envDefault:"6h"`
	UsageInterval  time.Duration `env:"SWEEP_USAGE_INTERVAL" envDefault:"5m"`
	BackupInterval time.Duration `env:"SWEEP_BACKUP_INTERVAL" envDefault:"1h"`
	JobAttempts    int           `env:"JOB_ATTEMPTS" envDefault:"3"`
	JobBackoff     time.Duration `env:"JOB_BACKOFF" envDefault:"30s"`
	JobTimeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"15m"`
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if err := persistence.Bootstrap(ctx, pool); err != nil {
		logger.Fatal("bootstrap control schema", zap.Error(err))
	}

	planStore := persistence.NewPlanStore(pool)
	if err := planStore.Seed(ctx, quota.DefaultPlans()); err != nil {
		logger.Fatal("seed plan catalog", zap.Error(err))
	}

	tenantStore := persistence.NewTenantStore(pool)
	usageStore := persistence.NewUsageStore(pool)
	backupStore := persistence.NewBackupStore(pool)
	namespaceStore := persistence.NewNamespaceStore(pool)
	notificationStore := persistence.NewNotificationStore(pool)

	tenantRepo := tenantsrepo.NewPostgres(tenantStore)
	fsProv := tenantsprov.NewFSProvisioner(cfg.TenantsDir)
	tenantService := tenantsservice.New(
		tenantRepo,
		planStore,
		tenantsservice.ProvisioningDeps{
			Schema:     tenantsprov.NewSchemaProvisioner(pool),
			Storage:    fsProv,
			Seeder:     tenantsprov.NewSeeder(pool),
			Namespaces: namespaceStore,
		},
		tenantsservice.Config{
			Protocol:     cfg.Protocol,
			Domain:       cfg.Domain,
			DatabaseHost: cfg.DatabaseHost,
			DatabasePort: cfg.DatabasePort,
			DatabaseName: cfg.DatabaseName,
			DatabaseUser: cfg.DatabaseUser,
			Debug:        cfg.Debug,
		},
		logger,
	)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	var estimator monitorservice.LoadEstimator
	switch cfg.LoadEstimator {
	case "activity":
		estimator = monitorservice.NewActivityEstimator()
	case "host":
		estimator = monitorservice.HostEstimator{}
	default:
		logger.Fatal("invalid LOAD_ESTIMATOR (use activity or host)", zap.String("estimator", cfg.LoadEstimator))
	}
	monitorService := monitorservice.New(
		monitorrepo.NewPostgres(usageStore),
		estimator,
		monitorservice.NewAccessLogReader(),
		logger,
	)
	monitorHTTPHandler := monitorhandler.New(monitorService, tenantService, planStore, logger)

	archiveStore, closeArchive := buildArchiveStore(ctx, cfg, logger)
	if closeArchive != nil {
		defer closeArchive()
	}

	backupService := backupsservice.New(
		backupStore,
		backupsservice.NewPGDump(cfg.DatabaseURL),
		archiveStore,
		logger,
	)
	backupsHTTPHandler := backupshandler.New(backupService, tenantService, planStore, logger)

	lifecycleService := lifecycleservice.New(lifecycleservice.Deps{
		Tenants:       tenantRepo,
		Deprovisioner: tenantService,
		Monitor:       monitorService,
		Plans:         planStore,
		Payment:       external.NoopPayment{},
		Notifier:      external.LogNotifier{Logger: logger},
		Proxy:         external.NoopProxy{},
		Notifications: notificationStore,
		Locker:        lifecycleservice.NewPGLocker(pool),
		Backups:       backupService,
	}, lifecycleservice.Config{}, logger)
	lifecycleHTTPHandler := lifecyclehandler.New(lifecycleService, logger)

	limiterStore := ratelimit.NewMemoryStore()
	defer limiterStore.Close()
	limiter := ratelimit.New(limiterStore)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	apiRouter := chi.NewRouter()

	apiRouter.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.GuestResolver, ratelimit.EndpointTenantCreate, logger))
		r.Post("/tenants", tenantHTTPHandler.Create)
	})
	apiRouter.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.GuestResolver, ratelimit.EndpointSlugCheck, logger))
		r.Get("/tenants/slug-check", tenantHTTPHandler.SlugCheck)
	})
	apiRouter.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.GuestResolver, ratelimit.EndpointBackupCreate, logger))
		backupsHTTPHandler.MountCreate(r)
	})
	apiRouter.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.GuestResolver, "", logger))
		tenantHTTPHandler.Mount(r)
		lifecycleHTTPHandler.Mount(r)
		monitorHTTPHandler.Mount(r)
		backupsHTTPHandler.Mount(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	var scheduler *jobs.Scheduler
	if cfg.SweepsEnabled {
		runner := jobs.NewRunner(jobs.RunnerConfig{
			Attempts: cfg.JobAttempts,
			Backoff:  cfg.JobBackoff,
			Timeout:  cfg.JobTimeout,
		}, external.LogAlerter{Logger: logger}, logger)

		scheduler = jobs.NewScheduler(runner, logger)
		scheduler.Register(jobs.Task{Name: "expiry-sweep", Interval: cfg.ExpiryInterval, Run: func(ctx context.Context) error {
			_, err := lifecycleService.ExpirySweep(ctx)
			return err
		}})
		scheduler.Register(jobs.Task{Name: "unpaid-sweep", Interval: cfg.UnpaidInterval, Run: func(ctx context.Context) error {
			_, err := lifecycleService.UnpaidSweep(ctx)
			return err
		}})
		scheduler.Register(jobs.Task{Name: "usage-sweep", Interval: cfg.UsageInterval, Run: func(ctx context.Context) error {
			_, err := lifecycleService.UsageSweep(ctx)
			return err
		}})
		scheduler.Register(jobs.Task{Name: "backup-sweep", Interval: cfg.BackupInterval, Run: func(ctx context.Context) error {
			_, err := lifecycleService.BackupSweep(ctx)
			return err
		}})
		scheduler.Start(ctx)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildArchiveStore returns the replication backend for backup archives,
// or nil when replication is disabled.
func buildArchiveStore(ctx context.Context, cfg config, logger *zap.Logger) (external.ArchiveStore, func()) {
	switch cfg.ArchiveBackend {
	case "gcs":
		if cfg.ArchiveBucket == "" {
			logger.Fatal("archive bucket required when ARCHIVE_BACKEND=gcs")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		return external.NewGCSArchive(client, cfg.ArchiveBucket, cfg.ArchivePrefix),
			func() { _ = client.Close() }
	case "local":
		if strings.TrimSpace(cfg.ArchiveLocalDir) == "" {
			logger.Fatal("archive local dir required when ARCHIVE_BACKEND=local")
		}
		return external.NewLocalArchive(cfg.ArchiveLocalDir), nil
	case "none":
		return nil, nil
	default:
		logger.Fatal("invalid ARCHIVE_BACKEND (use gcs, local, or none)", zap.String("backend", cfg.ArchiveBackend))
		return nil, nil
	}
}
