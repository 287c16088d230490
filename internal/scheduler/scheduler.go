// Package scheduler runs recurring background tasks on a clock.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"sessionbook/backend/internal/clock"
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Config struct {
	// Jitter delays each run by a random amount in [0, Jitter).
	Jitter time.Duration
	// RunOnStart runs every task once before waiting for the first tick.
	RunOnStart bool
}

type Scheduler struct {
	clock  clock.Clock
	log    *slog.Logger
	cfg    Config
	tasks  []Task
	jitter func(max time.Duration) time.Duration
}

func New(clk clock.Clock, logger *slog.Logger, cfg Config, tasks ...Task) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock: clk,
		log:   logger.With("component", "scheduler"),
		cfg:   cfg,
		tasks: tasks,
		jitter: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
}

// Run starts every task and blocks until ctx is canceled and all in-flight runs have
// returned. A run that has started is not interrupted by shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if t.Interval <= 0 || t.Run == nil {
			return errors.New("scheduler: task " + t.Name + " needs a positive interval and a run func")
		}
	}

	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(t)
	}
	s.log.InfoContext(ctx, "scheduler started", "tasks", len(s.tasks))
	wg.Wait()
	s.log.InfoContext(ctx, "scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	ticker := s.clock.NewTicker(t.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.runOnce(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.wait(ctx) {
				return
			}
			s.runOnce(ctx, t)
		}
	}
}

// wait sleeps for the jitter delay. It reports false if ctx ended first.
func (s *Scheduler) wait(ctx context.Context) bool {
	if s.cfg.Jitter <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(s.jitter(s.cfg.Jitter)):
		return true
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	runCtx := context.WithoutCancel(ctx)
	start := s.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			s.log.ErrorContext(runCtx, "task panicked", "task", t.Name, "panic", p)
		}
	}()
	if err := t.Run(runCtx); err != nil {
		s.log.ErrorContext(runCtx, "task failed", "task", t.Name, "err", err)
		return
	}
	s.log.DebugContext(runCtx, "task finished", "task", t.Name, "took", s.clock.Now().Sub(start))
}
