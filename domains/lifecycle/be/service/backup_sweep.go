package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/metrics"
)

// BackupSweep creates due backups for every active tenant whose plan
// includes them and prunes archives past retention.
func (s *Service) BackupSweep(ctx context.Context) (Report, error) {
	started := s.now()

	active, err := s.deps.Tenants.List(ctx, tenantsvc.StatusActive)
	if err != nil {
		return Report{}, fmt.Errorf("list active tenants: %w", err)
	}

	var mu sync.Mutex
	var report Report
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, t := range active {
		t := t
		g.Go(func() error {
			outcome := s.backupTenant(gctx, t)
			mu.Lock()
			report.Processed++
			switch outcome {
			case outcomeDone:
				report.BackedUp++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	pruned, err := s.deps.Backups.PruneExpired(ctx, started.UTC())
	if err != nil {
		s.logger.Error("prune expired backups", zap.Error(err))
		report.Failed++
	}
	report.Pruned += int64(pruned)

	metrics.SweepDuration.WithLabelValues("backup").Observe(s.now().Sub(started).Seconds())
	metrics.SweepActions.WithLabelValues("backup", "backed_up").Add(float64(report.BackedUp))
	metrics.SweepActions.WithLabelValues("backup", "failed").Add(float64(report.Failed))
	s.logger.Info("backup sweep finished", report.zapFields("backup")...)
	return report, nil
}

func (s *Service) backupTenant(ctx context.Context, t tenantsvc.Tenant) outcome {
	log := s.logger.With(zap.String("tenant_id", t.ID.String()), zap.String("slug", t.Slug))

	_, plan, err := s.limitsFor(ctx, t)
	if err != nil {
		log.Error("resolve plan", zap.Error(err))
		return outcomeFailed
	}
	if plan == nil || !plan.HasBackups {
		return outcomeSkipped
	}

	var created bool
	held, err := s.deps.Locker.WithTenantLock(ctx, t.ID, func(ctx context.Context) error {
		created, err = s.deps.Backups.EnsureFresh(ctx, t, *plan)
		return err
	})
	switch {
	case err != nil:
		log.Error("back up tenant", zap.Error(err))
		if nerr := s.deps.Notifier.Notify(ctx, external.Notification{
			TenantID: t.ID,
			Email:    t.AdminEmail,
			Kind:     external.NotifyBackupFailed,
			Subject:  "Backup failed",
			Body:     fmt.Sprintf("The scheduled backup for %q did not complete.", t.Slug),
		}); nerr != nil {
			log.Warn("notify backup failure", zap.Error(nerr))
		}
		return outcomeFailed
	case !held:
		return outcomeSkipped
	case created:
		return outcomeDone
	default:
		return outcomeSkipped
	}
}
