package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPushInterval is how often metrics are pushed to an OTLP collector.
// It matches the default run interval so every run is exported once.
const DefaultPushInterval = 60 * time.Second

// exportTarget describes the process every span and data point is attributed to, and the
// collector OTLP exporters send them to
type exportTarget struct {
	resource *resource.Resource
	endpoint string
	insecure bool
}

// newExportTarget builds the shared resource of cfg. Each daemon process gets its own
// service.instance.id so restarts are distinguishable in the collector.
func newExportTarget(ctx context.Context, cfg *Config, instance string) (*exportTarget, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.GetServiceName()),
		semconv.ServiceVersion(cfg.GetServiceVersion()),
		semconv.ServiceInstanceID(uuid.NewString()),
	}
	if instance != "" {
		attrs = append(attrs, attribute.String("confclient.instance", instance))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return &exportTarget{
		resource: res,
		endpoint: cfg.GetEndpoint(),
		insecure: cfg.Insecure,
	}, nil
}

// tracerProvider exports sampled spans over OTLP HTTP and installs the W3C propagators
func (t *exportTarget) tracerProvider(ctx context.Context, tc *TracingConfig) (trace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(t.endpoint)}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(t.resource),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Tracing initialized", "endpoint", t.endpoint, "sampling_ratio", tc.GetSampling())
	return tp, nil
}

// meterProvider reads metrics through the selected exporter. The Prometheus exporter registers
// with reg, which must be non-nil for ExporterPrometheus.
func (t *exportTarget) meterProvider(
	ctx context.Context, exporter Exporter, reg prometheus.Registerer,
) (metric.MeterProvider, error) {
	var reader sdkmetric.Reader
	switch exporter {
	case ExporterPrometheus:
		promExporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus metrics exporter: %w", err)
		}
		reader = promExporter
	default:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(t.endpoint)}
		if t.insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		otlpExporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(DefaultPushInterval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(t.resource),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized", "exporter", exporter, "endpoint", t.endpoint)
	return mp, nil
}
