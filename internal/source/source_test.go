package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunEvery_ImmediateFirstPass(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = RunEvery(ctx, Schedule{Interval: time.Hour}, nil, "test", func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	waitFor(t, func() bool { return calls.Load() == 1 })
	cancel()
	<-done
}

func TestRunEvery_TicksAgain(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() {
		_ = RunEvery(ctx, Schedule{Interval: 10 * time.Millisecond}, nil, "test", func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	waitFor(t, func() bool { return calls.Load() >= 3 })
}

func TestRunEvery_RetriesThenGivesUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	boom := errors.New("boom")
	go func() {
		_ = RunEvery(ctx, Schedule{
			Interval:   time.Hour,
			MaxRetries: 2,
			Backoff:    time.Millisecond,
		}, nil, "test", func(context.Context) error {
			calls.Add(1)
			return boom
		})
	}()

	// Initial attempt plus two retries, then nothing until the next tick.
	waitFor(t, func() bool { return calls.Load() == 3 })
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("poll ran %d times, want exactly 3 before the next tick", got)
	}
}

func TestRunEvery_StopsRetryingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- RunEvery(ctx, Schedule{
			Interval:   time.Hour,
			MaxRetries: 100,
			Backoff:    time.Hour, // would stall for a long time without the cancel
		}, nil, "test", func(context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		})
	}()

	waitFor(t, func() bool { return calls.Load() == 1 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunEvery returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunEvery did not return after cancel")
	}
}

type fakeAdapter struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
	err     error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Run(ctx context.Context) error {
	a.started.Store(true)
	if a.err != nil {
		return a.err
	}
	<-ctx.Done()
	a.stopped.Store(true)
	return ctx.Err()
}

func TestRegistry_StartStop(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "a"}
	b := &fakeAdapter{name: "b"}

	r := NewRegistry(nil)
	r.Register(a)
	r.Register(b)
	r.Start(context.Background())

	waitFor(t, func() bool { return a.started.Load() && b.started.Load() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !a.stopped.Load() || !b.stopped.Load() {
		t.Error("adapters did not observe cancellation before Stop returned")
	}
}

func TestRegistry_StartTwiceIsNoop(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "a"}
	r := NewRegistry(nil)
	r.Register(a)

	ctx := context.Background()
	r.Start(ctx)
	r.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRegistry_StopWithoutStart(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}

func TestRegistry_AdapterErrorDoesNotBlockStop(t *testing.T) {
	t.Parallel()

	failing := &fakeAdapter{name: "failing", err: errors.New("connect refused")}
	healthy := &fakeAdapter{name: "healthy"}

	r := NewRegistry(nil)
	r.Register(failing)
	r.Register(healthy)
	r.Start(context.Background())

	waitFor(t, func() bool { return healthy.started.Load() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
