package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	monitorsvc "github.com/diploy/hostfleet/domains/monitor/be/service"
	tenantsvc "github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/external"
	"github.com/diploy/hostfleet/platform/go/metrics"
)

// warnPercent is how close to a limit a tenant gets before the sweep
// sends a heads-up.
const warnPercent = 90.0

// UsageSweep samples every active and suspended tenant, suspends the
// active ones critically over their limits, warns the ones approaching
// them, and prunes old samples. Suspended tenants keep accumulating
// samples so Resume can judge them on fresh history.
func (s *Service) UsageSweep(ctx context.Context) (Report, error) {
	started := s.now()

	tenants, err := s.deps.Tenants.List(ctx, tenantsvc.StatusActive, tenantsvc.StatusSuspended)
	if err != nil {
		return Report{}, fmt.Errorf("list tenants: %w", err)
	}

	var mu sync.Mutex
	var report Report
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, t := range tenants {
		t := t
		g.Go(func() error {
			sampled, suspended, warned, failed := s.checkTenantUsage(gctx, t)
			mu.Lock()
			report.Processed++
			if sampled {
				report.Sampled++
			}
			if suspended {
				report.Suspended++
			}
			if warned {
				report.Warned++
			}
			if failed {
				report.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	pruned, err := s.deps.Monitor.PruneBefore(ctx, started.UTC().Add(-s.cfg.SampleRetention))
	if err != nil {
		s.logger.Error("prune usage samples", zap.Error(err))
		report.Failed++
	}
	report.Pruned = pruned

	metrics.SweepDuration.WithLabelValues("usage").Observe(s.now().Sub(started).Seconds())
	metrics.SweepActions.WithLabelValues("usage", "sampled").Add(float64(report.Sampled))
	metrics.SweepActions.WithLabelValues("usage", "suspended").Add(float64(report.Suspended))
	metrics.SweepActions.WithLabelValues("usage", "warned").Add(float64(report.Warned))
	metrics.SweepActions.WithLabelValues("usage", "failed").Add(float64(report.Failed))
	s.logger.Info("usage sweep finished", report.zapFields("usage")...)
	return report, nil
}

func (s *Service) checkTenantUsage(ctx context.Context, t tenantsvc.Tenant) (sampled, suspended, warned, failed bool) {
	log := s.logger.With(zap.String("tenant_id", t.ID.String()), zap.String("slug", t.Slug))

	limits, _, err := s.limitsFor(ctx, t)
	if err != nil {
		log.Error("resolve limits", zap.Error(err))
		return false, false, false, true
	}

	sample, err := s.deps.Monitor.Collect(ctx, t.ID, t.RootPath)
	if err != nil {
		log.Error("collect usage sample", zap.Error(err))
		return false, false, false, true
	}
	sampled = true

	// Suspended tenants are sampled for history only; there is nothing
	// further to enforce until Resume.
	if t.Status == tenantsvc.StatusSuspended {
		return sampled, false, false, false
	}

	violations := monitorsvc.CheckLimits(sample, limits)
	if len(violations) == 0 {
		return sampled, false, false, false
	}

	if critical := monitorsvc.CriticalViolations(violations); len(critical) > 0 {
		reason := describeViolations(critical)
		if err := s.Suspend(ctx, t.ID, "resource limits exceeded: "+reason); err != nil {
			log.Error("suspend over-limit tenant", zap.Error(err))
			return sampled, false, false, true
		}
		return sampled, true, false, false
	}

	worst := worstViolations(violations)
	if len(worst) == 0 {
		return sampled, false, false, false
	}
	warned, err = s.warnUsage(ctx, t, describeViolations(worst))
	if err != nil {
		log.Error("send usage warning", zap.Error(err))
		return sampled, false, false, true
	}
	return sampled, false, warned, false
}

// worstViolations keeps hard violations plus warnings at 90% or above;
// mild warnings stay quiet.
func worstViolations(violations []monitorsvc.Violation) []monitorsvc.Violation {
	var out []monitorsvc.Violation
	for _, v := range violations {
		if v.Level == monitorsvc.LevelViolation || v.Percent >= warnPercent {
			out = append(out, v)
		}
	}
	return out
}

// warnUsage notifies the tenant owner, at most once per throttle window.
func (s *Service) warnUsage(ctx context.Context, t tenantsvc.Tenant, detail string) (bool, error) {
	cutoff := s.now().UTC().Add(-s.cfg.WarnThrottle)
	sent, err := s.deps.Notifications.SentSince(ctx, t.ID, external.NotifyUsageWarning, cutoff)
	if err != nil {
		return false, err
	}
	if sent {
		return false, nil
	}

	if err := s.deps.Notifier.Notify(ctx, external.Notification{
		TenantID: t.ID,
		Email:    t.AdminEmail,
		Kind:     external.NotifyUsageWarning,
		Subject:  "Your site is approaching its resource limits",
		Body:     detail,
	}); err != nil {
		return false, err
	}
	if err := s.deps.Notifications.Record(ctx, t.ID, external.NotifyUsageWarning, s.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

func describeViolations(violations []monitorsvc.Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = fmt.Sprintf("%s at %.0f%% of limit", v.Resource, v.Percent)
	}
	return strings.Join(parts, ", ")
}
