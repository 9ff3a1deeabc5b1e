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

// ExpirySweep deletes tenants whose expiry passed more than the grace
// period ago. Tenants with no expiry are never candidates. One tenant's
// failure is tallied and the sweep moves on.
func (s *Service) ExpirySweep(ctx context.Context) (Report, error) {
	started := s.now()
	cutoff := started.UTC().Add(-s.cfg.GracePeriod)

	expired, err := s.deps.Tenants.ListExpired(ctx, cutoff)
	if err != nil {
		return Report{}, fmt.Errorf("list expired tenants: %w", err)
	}

	var mu sync.Mutex
	var report Report
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, t := range expired {
		t := t
		g.Go(func() error {
			outcome := s.expireTenant(gctx, t)
			mu.Lock()
			report.Processed++
			switch outcome {
			case outcomeDone:
				report.Deleted++
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

	metrics.SweepDuration.WithLabelValues("expiry").Observe(s.now().Sub(started).Seconds())
	metrics.SweepActions.WithLabelValues("expiry", "deleted").Add(float64(report.Deleted))
	metrics.SweepActions.WithLabelValues("expiry", "failed").Add(float64(report.Failed))
	s.logger.Info("expiry sweep finished", report.zapFields("expiry")...)
	return report, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Service) expireTenant(ctx context.Context, t tenantsvc.Tenant) outcome {
	log := s.logger.With(zap.String("tenant_id", t.ID.String()), zap.String("slug", t.Slug))

	held, err := s.deps.Locker.WithTenantLock(ctx, t.ID, func(ctx context.Context) error {
		// Re-read under the lock; another worker may have extended or
		// deleted the tenant since the listing.
		current, err := s.deps.Tenants.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		if current.ExpiresAt == nil || current.ExpiresAt.After(s.now().UTC().Add(-s.cfg.GracePeriod)) {
			return errNoLongerExpired
		}

		// Payment and proxy are external collaborators; their failures
		// never block the deletion itself.
		if err := s.deps.Payment.Cancel(ctx, t.ID); err != nil {
			log.Warn("cancel subscription", zap.Error(err))
		}
		if err := s.deps.Proxy.Apply(ctx, t.Slug, external.ProxyRemoved); err != nil {
			log.Warn("unbind hostname", zap.Error(err))
		}
		if err := s.deps.Deprovisioner.Deprovision(ctx, t.ID); err != nil {
			return fmt.Errorf("deprovision: %w", err)
		}

		if err := s.deps.Notifier.Notify(ctx, external.Notification{
			TenantID: t.ID,
			Email:    t.AdminEmail,
			Kind:     external.NotifyExpiryDeleted,
			Subject:  "Your site has been removed",
			Body:     fmt.Sprintf("The site %q expired and has been deleted.", t.Slug),
		}); err != nil {
			log.Warn("notify expiry deletion", zap.Error(err))
		}
		return nil
	})

	switch {
	case err == errNoLongerExpired:
		return outcomeSkipped
	case err != nil:
		log.Error("expire tenant", zap.Error(err))
		return outcomeFailed
	case !held:
		return outcomeSkipped
	default:
		log.Info("expired tenant deleted")
		return outcomeDone
	}
}

// errNoLongerExpired marks a tenant that left the expiry window between
// the listing and the locked re-read.
var errNoLongerExpired = fmt.Errorf("tenant no longer expired")
