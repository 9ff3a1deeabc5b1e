// Package jobs provides the retry and scheduling plumbing shared by the
// lifecycle sweeps and backup workers.
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Alerter receives jobs that exhausted their retries. The operator-facing
// implementation lives with the other external collaborators.
type Alerter interface {
	Alert(ctx context.Context, job string, err error)
}

// RunnerConfig bounds one job execution.
type RunnerConfig struct {
	Attempts int           // total tries including the first; min 1
	Backoff  time.Duration // sleep between tries, doubled each retry
	Timeout  time.Duration // per-attempt deadline; 0 disables
}

// Runner executes jobs with bounded retries and routes terminal failures
// to the alerter instead of crashing the worker loop.
type Runner struct {
	cfg     RunnerConfig
	alerter Alerter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRunner(cfg RunnerConfig, alerter Alerter, logger *zap.Logger) *Runner {
	if alerter == nil {
		panic("runner requires an alerter")
	}
	if logger == nil {
		panic("runner requires a logger")
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Runner{cfg: cfg, alerter: alerter, logger: logger, sleep: sleepCtx}
}

// Run executes fn until it succeeds or attempts are exhausted. The final
// failure is reported to the alerter and returned.
func (r *Runner) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := r.cfg.Backoff

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		lastErr = r.runOnce(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("job %s: %w", name, ctx.Err())
		}

		r.logger.Warn("job attempt failed",
			zap.String("job", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.Attempts),
			zap.Error(lastErr))

		if attempt < r.cfg.Attempts && backoff > 0 {
			if err := r.sleep(ctx, backoff); err != nil {
				return fmt.Errorf("job %s: %w", name, err)
			}
			backoff *= 2
		}
	}

	r.logger.Error("job exhausted retries", zap.String("job", name), zap.Error(lastErr))
	r.alerter.Alert(ctx, name, lastErr)
	return fmt.Errorf("job %s: %w", name, lastErr)
}

func (r *Runner) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return fn(attemptCtx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
