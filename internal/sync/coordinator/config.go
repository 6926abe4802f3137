package coordinator

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/globalconf-client/internal/telemetry"
)

const (
	// DefaultInterval is the time between two successful runs
	DefaultInterval = time.Minute

	// jitterDivisor bounds the random offset applied to the interval to a tenth of it
	jitterDivisor = 10
)

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithInterval sets the time between two successful runs
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.interval = interval
	}
}

// WithMaxBackoff bounds the delay before retrying after failed runs. It defaults to the interval.
func WithMaxBackoff(maxBackoff time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.maxBackoff = maxBackoff
	}
}

// WithClock sets the clock driving the schedule
func WithClock(clk clock.Clock) Option {
	return func(c *defaultCoordinator) {
		c.clock = clk
	}
}

// WithTracerProvider records a span per run
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *defaultCoordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(telemetry.TracerName)
		}
	}
}

// normalizeSchedule replaces invalid schedule settings with defaults
func normalizeSchedule(interval, maxBackoff time.Duration) (time.Duration, time.Duration) {
	if interval <= 0 {
		slog.Warn("Invalid run interval, using default",
			"interval", interval,
			"default", DefaultInterval)
		interval = DefaultInterval
	}
	if maxBackoff <= 0 {
		maxBackoff = interval
	}
	return interval, maxBackoff
}
