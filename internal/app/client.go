package app

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/stacklok/globalconf-client/internal/anchor"
	"github.com/stacklok/globalconf-client/internal/config"
	"github.com/stacklok/globalconf-client/internal/download"
	"github.com/stacklok/globalconf-client/internal/httpclient"
	"github.com/stacklok/globalconf-client/internal/sync"
	"github.com/stacklok/globalconf-client/internal/telemetry"
	"github.com/stacklok/globalconf-client/internal/version"
)

// NewSyncClient builds the configuration client for cfg. A nil meter provider disables metrics.
// extra options are applied last and may override the configured behavior.
func NewSyncClient(cfg *config.Config, mp metric.MeterProvider, extra ...sync.Option) (*sync.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	httpClient := httpclient.NewDefaultClient(cfg.Download.GetReadTimeout())
	resolver, err := version.New(
		cfg.Download.VersionMode,
		cfg.Download.FixedVersion,
		cfg.Download.MinVersion,
		cfg.Download.MaxVersion,
		httpClient,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create version resolver: %w", err)
	}

	downloadMetrics, err := telemetry.NewDownloadMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create download metrics: %w", err)
	}
	runMetrics, err := telemetry.NewRunMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create run metrics: %w", err)
	}

	opts := []sync.Option{
		sync.WithDownloadOptions(
			download.WithHTTPClient(httpClient),
			download.WithResolver(resolver),
			download.WithMetrics(downloadMetrics),
		),
		sync.WithOwnInstance(cfg.InstanceIdentifier),
		sync.WithAllowedFederations(cfg.AllowedFederations),
		sync.WithPartnerConcurrency(cfg.Download.PartnerConcurrency),
		sync.WithMetrics(runMetrics),
	}
	opts = append(opts, extra...)

	client, err := sync.NewClient(cfg.ConfigurationPath, anchor.NewLoader(cfg.AnchorFile), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create configuration client: %w", err)
	}
	return client, nil
}
