package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/globalconf-client/internal/api"
	"github.com/stacklok/globalconf-client/internal/config"
	"github.com/stacklok/globalconf-client/internal/download"
	"github.com/stacklok/globalconf-client/internal/status"
	pkgsync "github.com/stacklok/globalconf-client/internal/sync"
	"github.com/stacklok/globalconf-client/internal/sync/coordinator"
	"github.com/stacklok/globalconf-client/internal/telemetry"
)

const (
	// /execute blocks for a whole run, so the request timeout covers a slow federation
	defaultRequestTimeout = 5 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = defaultRequestTimeout + 15*time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// ConfClientAppOptions is a function that configures the app builder
type ConfClientAppOptions func(*confClientAppConfig) error

// confClientAppConfig collects the builder settings.
// It supports dependency injection for testing while providing sensible defaults for production.
type confClientAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	syncManager pkgsync.Manager
	tracker     *status.Tracker
	telemetry   *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...ConfClientAppOptions) (*confClientAppConfig, error) {
	cfg := &confClientAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.address == "" {
		cfg.address = config.DefaultAdminAddress
		if cfg.config != nil && cfg.config.Admin.Address != "" {
			cfg.address = cfg.config.Admin.Address
		}
	}

	return cfg, nil
}

// NewConfClientApp builds the daemon: configuration client, coordinator, status tracker,
// telemetry and admin server
func NewConfClientApp(ctx context.Context, opts ...ConfClientAppOptions) (*ConfClientApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(cfg.config.Telemetry),
			telemetry.WithInstance(cfg.config.InstanceIdentifier))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	coord, err := buildSyncComponents(cfg)
	if err != nil {
		_ = cfg.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, coord)
	if err != nil {
		_ = cfg.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &ConfClientApp{
		config: cfg.config,
		components: &AppComponents{
			Coordinator: coord,
			Tracker:     cfg.tracker,
			Telemetry:   cfg.telemetry,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the admin server address, overriding the configured one
func WithAddress(addr string) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, ok := strings.Cut(addr, ":")
		if !ok || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithStatusTracker allows injecting a status tracker (for testing)
func WithStatusTracker(t *status.Tracker) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		cfg.tracker = t
		return nil
	}
}

// WithTelemetry sets already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) ConfClientAppOptions {
	return func(cfg *confClientAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildSyncComponents builds the configuration client, status tracker and coordinator
func buildSyncComponents(b *confClientAppConfig) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components",
		"anchor", b.config.AnchorFile,
		"configuration_path", b.config.ConfigurationPath)

	if b.syncManager == nil {
		tracer := b.telemetry.TracerProvider().Tracer(telemetry.TracerName)
		client, err := NewSyncClient(b.config, b.telemetry.MeterProvider(),
			pkgsync.WithDownloadOptions(download.WithTracer(tracer)))
		if err != nil {
			return nil, err
		}
		b.syncManager = client
	}

	if b.tracker == nil {
		b.tracker = status.NewTracker(status.NewFileStatusPersistence(b.config.StatusFile))
	}

	coord := coordinator.New(b.syncManager, b.tracker,
		coordinator.WithInterval(b.config.Schedule.GetInterval()),
		coordinator.WithMaxBackoff(b.config.Schedule.GetMaxBackoff()),
		coordinator.WithTracerProvider(b.telemetry.TracerProvider()),
	)
	slog.Info("Sync components initialized successfully")

	return coord, nil
}

// buildHTTPServer builds the admin HTTP server with router and middleware
func buildHTTPServer(b *confClientAppConfig, coord coordinator.Coordinator) (*http.Server, error) {
	slog.Info("Initializing admin HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{}
	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		// metrics and tracing come first to capture every request
		b.middlewares = append([]func(http.Handler) http.Handler{
			metricsMiddleware,
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			slog.Info("Prometheus metrics exposed on /metrics")
		}
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))

	router := api.NewServer(coord, b.tracker, serverOpts...)

	return &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}, nil
}
