package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry owns the tracer and meter providers of the daemon
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// registry is set when metrics are exposed for Prometheus scraping
	registry *prometheus.Registry
}

// Option is a function that configures the telemetry setup
type Option func(*telemetryConfig)

type telemetryConfig struct {
	config   *Config
	instance string
}

// WithTelemetryConfig sets the telemetry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(tc *telemetryConfig) {
		tc.config = cfg
	}
}

// WithInstance attributes all exported telemetry to the given X-Road instance
func WithInstance(instance string) Option {
	return func(tc *telemetryConfig) {
		tc.instance = instance
	}
}

// New creates the providers selected by the configuration. Disabled signals get no-op providers.
// The caller is responsible for calling Shutdown when the application exits.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	cfg := &telemetryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	tel := &Telemetry{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}

	if cfg.config == nil || !cfg.config.Enabled {
		slog.Debug("Telemetry disabled")
		return tel, nil
	}
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	tracingEnabled := cfg.config.Tracing != nil && cfg.config.Tracing.Enabled
	if !tracingEnabled && !cfg.config.MetricsEnabled() {
		slog.Info("Telemetry enabled without tracing or metrics, using no-op providers")
		return tel, nil
	}

	target, err := newExportTarget(ctx, cfg.config, cfg.instance)
	if err != nil {
		return nil, err
	}

	if tracingEnabled {
		if tel.tracerProvider, err = target.tracerProvider(ctx, cfg.config.Tracing); err != nil {
			return nil, fmt.Errorf("failed to create tracer provider: %w", err)
		}
	}

	if cfg.config.MetricsEnabled() {
		exporter := cfg.config.GetExporter()
		if exporter == ExporterPrometheus {
			tel.registry = prometheus.NewRegistry()
		}
		if tel.meterProvider, err = target.meterProvider(ctx, exporter, tel.registry); err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create meter provider: %w", err)
		}
	}

	slog.Info("Telemetry initialized",
		"service_name", cfg.config.GetServiceName(),
		"service_version", cfg.config.GetServiceVersion(),
		"tracing", tracingEnabled,
		"metrics", cfg.config.MetricsEnabled(),
	)
	return tel, nil
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the Prometheus scrape handler, or nil when metrics are not exposed for
// scraping.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes pending spans and data points and stops the SDK providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}
