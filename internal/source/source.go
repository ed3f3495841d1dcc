// Package source defines the adapter contract for pulling messages out of
// external channels and the registry that runs adapters in the background.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/notification"
	"github.com/linnemanlabs/sift/internal/triage"
)

// Ingestor is the slice of the triage service adapters need.
type Ingestor interface {
	Ingest(ctx context.Context, r *notification.Record) (*triage.IngestResult, error)
}

// Adapter pulls messages from one external channel and feeds them to the
// ingestor. Run blocks until ctx is cancelled or a fatal error occurs;
// transient failures are the adapter's job to retry.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule describes how often a polling pass runs and how a failing pass
// is retried before waiting for the next tick.
type Schedule struct {
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// RunEvery executes poll immediately and then on every Interval tick until
// ctx is cancelled. A failing pass is retried up to MaxRetries times with
// doubling backoff; after that the error is dropped and the loop waits for
// the next tick.
func RunEvery(ctx context.Context, s Schedule, logger log.Logger, name string, poll func(context.Context) error) error {
	if logger == nil {
		logger = log.Nop()
	}

	run := func() {
		backoff := s.Backoff
		for attempt := 0; ; attempt++ {
			err := poll(ctx)
			if err == nil {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if attempt >= s.MaxRetries {
				logger.Error(ctx, err, "poll failed, giving up until next tick",
					"adapter", name,
					"attempts", attempt+1,
				)
				return
			}
			logger.Warn(ctx, "poll failed, retrying",
				"adapter", name,
				"attempt", attempt+1,
				"backoff", backoff.String(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	run()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// Registry owns the background goroutines of all registered adapters.
type Registry struct {
	logger   log.Logger
	adapters []Adapter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{logger: logger}
}

// Register adds an adapter. Must be called before Start.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// Start launches one goroutine per adapter. Calling Start twice is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, a := range r.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			r.logger.Info(runCtx, "adapter started", "adapter", a.Name())
			if err := a.Run(runCtx); err != nil && runCtx.Err() == nil {
				r.logger.Error(runCtx, err, "adapter stopped", "adapter", a.Name())
				return
			}
			r.logger.Info(runCtx, "adapter stopped", "adapter", a.Name())
		}(a)
	}

	done := r.done
	go func() {
		wg.Wait()
		close(done)
	}()
}

// Stop cancels all adapters and waits for them to exit, bounded by ctx.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
