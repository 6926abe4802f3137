package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	gosync "sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/globalconf-client/internal/status"
	pkgsync "github.com/stacklok/globalconf-client/internal/sync"
)

// runKey collapses concurrent runs in the singleflight group
const runKey = "run"

//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/stacklok/globalconf-client/internal/sync/coordinator Coordinator

// Coordinator manages background scheduling and execution of configuration client runs
type Coordinator interface {
	// Start runs the client immediately and then on schedule.
	// Blocks until context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator
	Stop() error

	// Trigger runs the client now and returns the resulting status. Concurrent triggers and a
	// scheduled run that is already executing share one run.
	Trigger(ctx context.Context) status.DiagnosticsStatus
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager pkgsync.Manager
	tracker *status.Tracker

	interval   time.Duration
	maxBackoff time.Duration
	clock      clock.Clock
	tracer     trace.Tracer

	backoff *backoff.ExponentialBackOff
	group   singleflight.Group

	// Lifecycle management
	mu         gosync.Mutex
	lifecycle  context.Context
	cancelFunc context.CancelFunc
	stopped    bool
	done       chan struct{}
}

// New creates a new coordinator with injected dependencies
func New(manager pkgsync.Manager, tracker *status.Tracker, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:  manager,
		tracker:  tracker,
		interval: DefaultInterval,
		clock:    clock.New(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.interval, c.maxBackoff = normalizeSchedule(c.interval, c.maxBackoff)

	c.backoff = backoff.NewExponentialBackOff()
	c.backoff.InitialInterval = min(c.interval/4, c.maxBackoff)
	c.backoff.MaxInterval = c.maxBackoff
	c.backoff.Reset()
	return c
}

// calculateInterval returns interval with a random jitter of up to a tenth of it applied, so
// that clients sharing a mirror do not poll at the same instant.
func calculateInterval(interval time.Duration) time.Duration {
	jitter := interval / jitterDivisor
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return interval + jitterOffset
}

// nextDelay returns the delay before the next scheduled run. Failed runs are retried with an
// exponential backoff bounded by the max backoff; a success resets it.
func (c *defaultCoordinator) nextDelay(success bool) time.Duration {
	if success {
		c.backoff.Reset()
		return calculateInterval(c.interval)
	}
	return min(c.backoff.NextBackOff(), c.maxBackoff)
}

// Start begins background run coordination
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting configuration client coordinator",
		"interval", c.interval,
		"max_backoff", c.maxBackoff)

	// Create cancellable context for this coordinator
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.lifecycle = coordCtx
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		close(c.done)
		slog.Info("Configuration client coordinator shutting down")
	}()

	now := c.clock.Now()
	c.tracker.Initialize(coordCtx, now, now)

	// Perform initial run
	delay := c.scheduledRun(coordCtx)
	timer := c.clock.Timer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			timer.Reset(c.scheduledRun(coordCtx))
		case <-coordCtx.Done():
			slog.Info("Configuration client coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.stopped = true
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping configuration client coordinator")
		cancel()
		// Wait for coordinator to finish
		<-c.done
	}
	return nil
}

// Trigger runs the client now. Once the coordinator is stopping it returns the current
// status without running.
func (c *defaultCoordinator) Trigger(ctx context.Context) status.DiagnosticsStatus {
	c.mu.Lock()
	lifecycle, stopped := c.lifecycle, c.stopped
	c.mu.Unlock()
	if stopped || (lifecycle != nil && lifecycle.Err() != nil) {
		slog.Info("Configuration client coordinator is stopping, not starting a run")
		return c.tracker.Get()
	}

	// a shared run is not cancelled by one of the callers going away, only by shutdown
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	if lifecycle != nil {
		stop := context.AfterFunc(lifecycle, cancel)
		defer stop()
	}

	c.run(runCtx)
	return c.tracker.Get()
}

// scheduledRun runs the client, publishes the next update time and returns the delay until then
func (c *defaultCoordinator) scheduledRun(ctx context.Context) time.Duration {
	success := c.run(ctx)
	if ctx.Err() != nil {
		return c.interval
	}

	delay := c.nextDelay(success)
	next := c.clock.Now().Add(delay)
	c.tracker.Update(ctx, func(s *status.DiagnosticsStatus) {
		s.NextUpdate = &next
	})
	slog.Debug("Next configuration client run scheduled", "delay", delay, "at", next)
	return delay
}

// run executes one run through the singleflight group and reports whether it succeeded
func (c *defaultCoordinator) run(ctx context.Context) bool {
	v, _, _ := c.group.Do(runKey, func() (any, error) {
		return c.performSync(ctx), nil
	})
	success, _ := v.(bool)
	return success
}
