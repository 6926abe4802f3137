// Package telemetry provides OpenTelemetry instrumentation for the configuration client.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DownloadMetricsMeterName is the name used for the download metrics meter
	DownloadMetricsMeterName = "github.com/stacklok/globalconf-client/download"

	// RunMetricsMeterName is the name used for the run metrics meter
	RunMetricsMeterName = "github.com/stacklok/globalconf-client/sync"
)

// DownloadMetrics holds the OpenTelemetry instruments for configuration downloads
type DownloadMetrics struct {
	locationFailures metric.Int64Counter
	downloadedBytes  metric.Int64Counter
	skippedFiles     metric.Int64Counter
}

// NewDownloadMetrics creates a new DownloadMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewDownloadMetrics(provider metric.MeterProvider) (*DownloadMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DownloadMetricsMeterName)

	locationFailures, err := meter.Int64Counter(
		"confclient_location_failures_total",
		metric.WithDescription("Number of failed download attempts per configuration location"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	downloadedBytes, err := meter.Int64Counter(
		"confclient_downloaded_bytes_total",
		metric.WithDescription("Bytes of configuration content fetched over the network"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	skippedFiles, err := meter.Int64Counter(
		"confclient_unchanged_files_total",
		metric.WithDescription("Configuration files not fetched because the local copy was up to date"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	return &DownloadMetrics{
		locationFailures: locationFailures,
		downloadedBytes:  downloadedBytes,
		skippedFiles:     skippedFiles,
	}, nil
}

// RecordLocationFailure records a failed attempt against a location
func (m *DownloadMetrics) RecordLocationFailure(ctx context.Context, instance, location string) {
	if m == nil || m.locationFailures == nil {
		return
	}

	m.locationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("instance", instance),
		attribute.String("location", location),
	))
}

// RecordDownloadedBytes records content bytes fetched for an instance
func (m *DownloadMetrics) RecordDownloadedBytes(ctx context.Context, instance string, n int) {
	if m == nil || m.downloadedBytes == nil {
		return
	}

	m.downloadedBytes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("instance", instance)))
}

// RecordSkippedFile records a file whose local copy matched the declared hash
func (m *DownloadMetrics) RecordSkippedFile(ctx context.Context, instance string) {
	if m == nil || m.skippedFiles == nil {
		return
	}

	m.skippedFiles.Add(ctx, 1, metric.WithAttributes(attribute.String("instance", instance)))
}

// RunMetrics holds the OpenTelemetry instruments for configuration client runs
type RunMetrics struct {
	runDuration metric.Float64Histogram
	partners    metric.Int64Gauge
}

// NewRunMetrics creates a new RunMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRunMetrics(provider metric.MeterProvider) (*RunMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RunMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"confclient_run_duration_seconds",
		metric.WithDescription("Duration of configuration client runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	partners, err := meter.Int64Gauge(
		"confclient_federation_partners",
		metric.WithDescription("Number of federation partners downloaded in the last run"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		runDuration: runDuration,
		partners:    partners,
	}, nil
}

// RecordRunDuration records the duration of a run for the primary instance
func (m *RunMetrics) RecordRunDuration(ctx context.Context, instance string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("instance", instance),
		attribute.Bool("success", success),
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPartners records the number of allowed federation partners of the last run
func (m *RunMetrics) RecordPartners(ctx context.Context, instance string, count int64) {
	if m == nil || m.partners == nil {
		return
	}

	m.partners.Record(ctx, count, metric.WithAttributes(attribute.String("instance", instance)))
}
