// Package app provides application lifecycle management for the configuration client daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/globalconf-client/internal/config"
)

// ConfClientApp encapsulates all components needed to run the configuration client daemon.
// It provides lifecycle management and graceful shutdown capabilities.
type ConfClientApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the coordinator in the background and serves the admin API.
// This method blocks until the HTTP server stops or encounters an error.
func (app *ConfClientApp) Start() error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()

	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Configuration client coordinator failed", "error", err)
		}
	}()

	slog.Info("Admin server listening", "address", ln.Addr().String())
	if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, shuts down the HTTP server and flushes telemetry.
func (app *ConfClientApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down configuration client...")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop configuration client coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Configuration client shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *ConfClientApp) GetConfig() *config.Config {
	return app.config
}

// Addr returns the address the admin server listens on, or nil before Start
func (app *ConfClientApp) Addr() net.Addr {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener == nil {
		return nil
	}
	return app.listener.Addr()
}
