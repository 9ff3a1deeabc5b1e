package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/metrics"
)

// UnpaidSweep suspends active tenants whose subscription is delinquent
// and auto-deletes tenants that have sat suspended past the retention
// window. Tenants on the default plan are never auto-deleted; they have
// nothing to pay for.
func (s *Service) UnpaidSweep(ctx context.Context) (Report, error) {
	started := s.now()

	var mu sync.Mutex
	var report Report

	active, err := s.deps.Tenants.List(ctx, tenantsvc.StatusActive)
	if err != nil {
		return Report{}, fmt.Errorf("list active tenants: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, t := range active {
		t := t
		g.Go(func() error {
			outcome := s.suspendIfUnpaid(gctx, t)
			mu.Lock()
			report.Processed++
			switch outcome {
			case outcomeDone:
				report.Suspended++
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

	// Second phase: long-suspended tenants age out entirely.
	stale, err := s.deps.Tenants.ListSuspendedBefore(ctx, started.UTC().Add(-s.cfg.SuspendedRetention))
	if err != nil {
		return report, fmt.Errorf("list stale suspended tenants: %w", err)
	}
	for _, t := range stale {
		report.Processed++
		switch s.deleteStaleSuspended(ctx, t) {
		case outcomeDone:
			report.Deleted++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
		}
	}

	metrics.SweepDuration.WithLabelValues("unpaid").Observe(s.now().Sub(started).Seconds())
	metrics.SweepActions.WithLabelValues("unpaid", "suspended").Add(float64(report.Suspended))
	metrics.SweepActions.WithLabelValues("unpaid", "deleted").Add(float64(report.Deleted))
	metrics.SweepActions.WithLabelValues("unpaid", "failed").Add(float64(report.Failed))
	s.logger.Info("unpaid sweep finished", report.zapFields("unpaid")...)
	return report, nil
}

func (s *Service) suspendIfUnpaid(ctx context.Context, t tenantsvc.Tenant) outcome {
	log := s.logger.With(zap.String("tenant_id", t.ID.String()), zap.String("slug", t.Slug))

	// Guests and default-plan tenants have no subscription to be behind on.
	if t.PlanID == nil {
		return outcomeSkipped
	}
	_, plan, err := s.limitsFor(ctx, t)
	if err != nil {
		log.Error("resolve plan", zap.Error(err))
		return outcomeFailed
	}
	if plan == nil || plan.IsFree() {
		return outcomeSkipped
	}

	delinquent, err := s.deps.Payment.Delinquent(ctx, t.ID)
	if err != nil {
		log.Error("check payment state", zap.Error(err))
		return outcomeFailed
	}
	if !delinquent {
		return outcomeSkipped
	}

	switch err := s.Suspend(ctx, t.ID, "payment overdue"); {
	case errors.Is(err, ErrLockedElsewhere):
		return outcomeSkipped
	case err != nil:
		log.Error("suspend unpaid tenant", zap.Error(err))
		return outcomeFailed
	default:
		return outcomeDone
	}
}

func (s *Service) deleteStaleSuspended(ctx context.Context, t tenantsvc.Tenant) outcome {
	log := s.logger.With(zap.String("tenant_id", t.ID.String()), zap.String("slug", t.Slug))

	// No plan means the default policy applies, and default-policy
	// tenants are never aged out here; they leave through the expiry
	// sweep instead.
	if t.PlanID == nil {
		return outcomeSkipped
	}
	_, plan, err := s.limitsFor(ctx, t)
	if err != nil {
		log.Error("resolve plan", zap.Error(err))
		return outcomeFailed
	}
	if plan != nil && plan.IsDefault {
		return outcomeSkipped
	}

	held, err := s.deps.Locker.WithTenantLock(ctx, t.ID, func(ctx context.Context) error {
		current, err := s.deps.Tenants.Get(ctx, t.ID)
		if err != nil {
			return err
		}
		if current.Status != tenantsvc.StatusSuspended {
			return errNoLongerExpired
		}
		if err := s.deps.Payment.Cancel(ctx, t.ID); err != nil {
			log.Warn("cancel subscription", zap.Error(err))
		}
		return s.deps.Deprovisioner.Deprovision(ctx, t.ID)
	})
	switch {
	case err == errNoLongerExpired:
		return outcomeSkipped
	case err != nil:
		log.Error("delete stale suspended tenant", zap.Error(err))
		return outcomeFailed
	case !held:
		return outcomeSkipped
	default:
		log.Info("stale suspended tenant deleted")
		return outcomeDone
	}
}
