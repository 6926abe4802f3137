package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	confclientapp "github.com/stacklok/globalconf-client/internal/app"
	"github.com/stacklok/globalconf-client/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configuration client daemon",
		Long: `Run the configuration client daemon.

The daemon downloads the global configuration on a schedule and serves the admin API
(/execute, /status, /health, /readiness, /version and /metrics when enabled).

The configuration file (--config) names the anchor, the configuration path and all other
operational settings. CONFCLIENT_ prefixed environment variables override file values.`,
		RunE: runServe,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	cmd.Flags().String("address", "", "Admin API address, overrides admin.address")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"anchor", cfg.AnchorFile,
		"configuration_path", cfg.ConfigurationPath)

	opts := []confclientapp.ConfClientAppOptions{confclientapp.WithConfig(cfg)}
	if address, _ := cmd.Flags().GetString("address"); address != "" {
		opts = append(opts, confclientapp.WithAddress(address))
	}

	// the app outlives the signal context so shutdown runs with live telemetry
	app, err := confclientapp.NewConfClientApp(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case err := <-errChan:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errChan
}
