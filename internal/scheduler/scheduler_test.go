package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"sessionbook/backend/internal/clock"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a task run")
		return ""
	}
}

func expectNone(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected run of %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func start(t *testing.T, s *Scheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return cancel, done
}

func TestScheduler_RunsTasksOnTheirCadence(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	ran := make(chan string, 10)
	task := func(name string) func(context.Context) error {
		return func(context.Context) error {
			ran <- name
			return nil
		}
	}
	s := New(clk, nil, Config{},
		Task{Name: "fast", Interval: time.Minute, Run: task("fast")},
		Task{Name: "slow", Interval: 5 * time.Minute, Run: task("slow")},
	)
	cancel, done := start(t, s)

	clk.BlockUntil(2)
	clk.Advance(time.Minute)
	if got := receive(t, ran); got != "fast" {
		t.Fatalf("first run = %s, want fast", got)
	}
	expectNone(t, ran)

	// The fast ticker may deliver several ticks while the clock moves four minutes;
	// slow must fire exactly once among them.
	clk.Advance(4 * time.Minute)
	runs := map[string]int{}
	for runs["slow"] == 0 || runs["fast"] == 0 {
		runs[receive(t, ran)]++
		if runs["fast"] > 4 {
			t.Fatalf("runs = %v, want slow after at most 4 fast runs", runs)
		}
	}
	if runs["slow"] != 1 {
		t.Fatalf("runs = %v, want one slow run", runs)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestScheduler_JitterDelaysRun(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	ran := make(chan string, 1)
	s := New(clk, nil, Config{Jitter: 30 * time.Second},
		Task{Name: "sweep", Interval: time.Minute, Run: func(context.Context) error {
			ran <- "sweep"
			return nil
		}},
	)
	s.jitter = func(time.Duration) time.Duration { return 10 * time.Second }
	cancel, done := start(t, s)
	defer func() {
		cancel()
		<-done
	}()

	clk.BlockUntil(1)
	clk.Advance(time.Minute)
	clk.BlockUntil(2)
	clk.Advance(9 * time.Second)
	expectNone(t, ran)
	clk.Advance(time.Second)
	receive(t, ran)
}

func TestScheduler_ShutdownWaitsForRunningTask(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	started := make(chan string, 1)
	release := make(chan struct{})
	var runErr error
	s := New(clk, nil, Config{RunOnStart: true},
		Task{Name: "sweep", Interval: time.Hour, Run: func(ctx context.Context) error {
			started <- "sweep"
			<-release
			runErr = ctx.Err()
			return nil
		}},
	)
	cancel, done := start(t, s)

	receive(t, started)
	cancel()
	select {
	case <-done:
		t.Fatalf("Run returned while a task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if runErr != nil {
		t.Fatalf("task context canceled during shutdown: %v", runErr)
	}
}

func TestScheduler_FailingTaskKeepsRunning(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	ran := make(chan string, 4)
	calls := 0
	s := New(clk, nil, Config{},
		Task{Name: "flaky", Interval: time.Minute, Run: func(context.Context) error {
			calls++
			ran <- "flaky"
			switch calls {
			case 1:
				return errors.New("boom")
			case 2:
				panic("worse")
			}
			return nil
		}},
	)
	cancel, done := start(t, s)
	defer func() {
		cancel()
		<-done
	}()

	clk.BlockUntil(1)
	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		receive(t, ran)
	}
}

func TestScheduler_RejectsInvalidTask(t *testing.T) {
	s := New(clock.NewFake(time.Now()), nil, Config{}, Task{Name: "broken"})
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error for a task without interval")
	}
}
