package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic job owned by the scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler fires each task on its own ticker. A tick is skipped when the
// previous run of the same task is still in flight, so slow sweeps never
// pile up behind each other.
type Scheduler struct {
	runner *Runner
	logger *zap.Logger

	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewScheduler(runner *Runner, logger *zap.Logger) *Scheduler {
	if runner == nil {
		panic("scheduler requires a runner")
	}
	if logger == nil {
		panic("scheduler requires a logger")
	}
	return &Scheduler{runner: runner, logger: logger}
}

// Register adds a task. Panics after Start; the task set is fixed at boot.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		panic("register after start")
	}
	if task.Interval <= 0 || task.Run == nil {
		panic("task requires an interval and a run func")
	}
	s.tasks = append(s.tasks, task)
}

// Start launches the tickers. The returned context cancellation via Stop
// lets in-flight runs finish their current tenant before exiting.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(runCtx, task)
	}
}

// Stop cancels all loops and blocks until in-flight runs return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	var running sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !running.TryLock() {
				s.logger.Debug("skipping tick, previous run still active",
					zap.String("task", task.Name))
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer running.Unlock()
				if err := s.runner.Run(ctx, task.Name, task.Run); err != nil && ctx.Err() == nil {
					s.logger.Error("scheduled task failed",
						zap.String("task", task.Name), zap.Error(err))
				}
			}()
		}
	}
}
