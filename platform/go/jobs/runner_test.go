package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureAlerter struct {
	mu    sync.Mutex
	jobs  []string
	errs  []error
	calls int
}

func (a *captureAlerter) Alert(_ context.Context, job string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	a.errs = append(a.errs, err)
	a.calls++
}

func newTestRunner(cfg RunnerConfig, alerter Alerter) *Runner {
	r := NewRunner(cfg, alerter, zap.NewNop())
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRunSucceedsFirstTry(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 3}, alerter)

	calls := 0
	err := r.Run(context.Background(), "sweep", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Zero(t, alerter.calls)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 3, Backoff: time.Millisecond}, alerter)

	calls := 0
	err := r.Run(context.Background(), "sweep", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Zero(t, alerter.calls)
}

func TestRunExhaustedRetriesAlertsOnce(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 3}, alerter)

	boom := errors.New("boom")
	err := r.Run(context.Background(), "sweep", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, alerter.calls)
	require.Equal(t, []string{"sweep"}, alerter.jobs)
	require.ErrorIs(t, alerter.errs[0], boom)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 5, Backoff: time.Millisecond}, alerter)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Run(ctx, "sweep", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
	require.Zero(t, alerter.calls)
}

func TestRunAppliesPerAttemptTimeout(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 1, Timeout: 10 * time.Millisecond}, alerter)

	err := r.Run(context.Background(), "sweep", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, 1, alerter.calls)
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 1}, alerter)
	s := NewScheduler(r, zap.NewNop())

	var mu sync.Mutex
	active, maxActive, runs := 0, 0, 0
	block := make(chan struct{})

	s.Register(Task{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			mu.Lock()
			active++
			runs++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			<-block

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	close(block)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, maxActive, "overlapping runs of the same task")
	require.GreaterOrEqual(t, runs, 1)
}

func TestSchedulerStopWaitsForInFlightRun(t *testing.T) {
	alerter := &captureAlerter{}
	r := newTestRunner(RunnerConfig{Attempts: 1}, alerter)
	s := NewScheduler(r, zap.NewNop())

	started := make(chan struct{})
	finished := false
	var mu sync.Mutex

	s.Register(Task{
		Name:     "once",
		Interval: time.Millisecond,
		Run: func(context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			finished = true
			mu.Unlock()
			return nil
		},
	})

	s.Start(context.Background())
	<-started
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, finished, "Stop returned before the run finished")
}
