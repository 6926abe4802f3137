package app

import (
	"github.com/stacklok/globalconf-client/internal/status"
	"github.com/stacklok/globalconf-client/internal/sync/coordinator"
	"github.com/stacklok/globalconf-client/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator schedules configuration client runs
	Coordinator coordinator.Coordinator

	// Tracker holds the diagnostics status served on /status
	Tracker *status.Tracker

	// Telemetry owns the meter and tracer providers (optional)
	Telemetry *telemetry.Telemetry
}
