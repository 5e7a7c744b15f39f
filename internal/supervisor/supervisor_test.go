package supervisor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastSupervisor(opts ...Option) *Supervisor {
	base := []Option{
		WithCheckInterval(5 * time.Millisecond),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithShutdownTimeout(time.Second),
	}
	return New(append(base, opts...)...)
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// runSupervisor starts s in the background and returns a stop function
// that cancels it and returns the Run error.
func runSupervisor(s *Supervisor) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}

// TestRestartFailingUnit tests restarts and the restart budget.
func TestRestartFailingUnit(t *testing.T) {
	t.Parallel()

	var (
		runs     atomic.Int32
		mu       sync.Mutex
		restarts []string
	)
	s := fastSupervisor(
		WithRestartBudget(2, time.Hour),
		WithRestartHook(func(name string) {
			mu.Lock()
			defer mu.Unlock()
			restarts = append(restarts, name)
		}),
	)
	s.Add(Unit{Name: "flaky", Run: func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}})

	stop := runSupervisor(s)
	waitFor(t, func() bool { return runs.Load() == 3 })

	// The budget is spent; give the loop time to prove it stays down.
	time.Sleep(100 * time.Millisecond)
	if err := stop(); err != nil {
		t.Errorf("Run() returned error: %v", err)
	}

	if got := runs.Load(); got != 3 {
		t.Errorf("runs = %d, expected 3 (initial run plus two restarts)", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(restarts, []string{"flaky", "flaky"}) {
		t.Errorf("restart hook calls = %v", restarts)
	}
}

// TestRecoverPanic tests that a panicking unit is restarted.
func TestRecoverPanic(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := fastSupervisor()
	s.Add(Unit{Name: "panicky", Run: func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("first run")
		}
		<-ctx.Done()
		return nil
	}})

	stop := runSupervisor(s)
	waitFor(t, func() bool { return runs.Load() >= 2 })
	if err := stop(); err != nil {
		t.Errorf("Run() returned error: %v", err)
	}
}

// TestHealthyUnitsRunOnce tests that live units are left alone.
func TestHealthyUnitsRunOnce(t *testing.T) {
	t.Parallel()

	var a, b atomic.Int32
	block := func(counter *atomic.Int32) func(context.Context) error {
		return func(ctx context.Context) error {
			counter.Add(1)
			<-ctx.Done()
			return ctx.Err()
		}
	}

	s := fastSupervisor()
	s.Add(Unit{Name: "a", Run: block(&a)}, Unit{Name: "b", Run: block(&b)})

	if !slices.Equal(s.Names(), []string{"a", "b"}) {
		t.Errorf("Names() = %v", s.Names())
	}

	stop := runSupervisor(s)
	waitFor(t, func() bool { return a.Load() == 1 && b.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if err := stop(); err != nil {
		t.Errorf("Run() returned error: %v", err)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("runs = %d/%d, expected 1/1", a.Load(), b.Load())
	}
}

// TestShutdownTimeout tests the bounded join.
func TestShutdownTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	s := fastSupervisor(WithShutdownTimeout(50 * time.Millisecond))
	s.Add(Unit{Name: "stubborn", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	stop := runSupervisor(s)
	<-started

	begin := time.Now()
	err := stop()
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("Run() = %v, expected ErrShutdownTimeout", err)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
}

// TestBackoffGrowth tests the delay schedule of a crashing unit.
func TestBackoffGrowth(t *testing.T) {
	t.Parallel()

	s := New(WithBackoff(time.Second, 4*time.Second), WithRestartBudget(100, time.Minute))
	st := &unitState{
		unit:    Unit{Name: "x"},
		backoff: s.backoffMin,
		budget:  newBudget(s),
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.startedAt = now
	var delays []time.Duration
	for range 4 {
		s.scheduleRestart(st, now, errors.New("crash"))
		delays = append(delays, st.restartAt.Sub(now))
	}
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	if !slices.Equal(delays, expected) {
		t.Errorf("delays = %v, expected %v", delays, expected)
	}

	// A long healthy run resets the schedule.
	st.startedAt = now.Add(-time.Hour)
	s.scheduleRestart(st, now, nil)
	if got := st.restartAt.Sub(now); got != time.Second {
		t.Errorf("delay after stable run = %v, expected 1s", got)
	}
}
