package coordinator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/otel"
	"github.com/stacklok/globalconf-client/internal/status"
)

// performSync executes one run and publishes its outcome to the status tracker
func (c *defaultCoordinator) performSync(ctx context.Context) bool {
	ctx, span := otel.StartSpan(ctx, c.tracer, "configuration client run", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	c.tracker.Update(ctx, func(s *status.DiagnosticsStatus) {
		s.Phase = status.SyncPhaseSyncing
	})

	// Set up the final status update in a defer block to ensure that the status of the run is
	// always published. Start from a failure in case the run is killed by an unexpected error.
	outcome := status.DiagnosticsStatus{
		ReturnCode:  globalconf.ErrorCodeInternal,
		Description: "Unexpected failure while running configuration client",
		Phase:       status.SyncPhaseFailed,
	}
	defer func() {
		otel.RecordOutcome(span, outcome.ReturnCode, outcome.Description)

		now := c.clock.Now()
		c.tracker.Update(ctx, func(s *status.DiagnosticsStatus) {
			s.ReturnCode = outcome.ReturnCode
			s.Description = outcome.Description
			s.Phase = outcome.Phase
			s.PrevUpdate = &now
			if outcome.RunID != "" {
				s.RunID = outcome.RunID
			}
			if outcome.InstanceIdentifier != "" {
				s.InstanceIdentifier = outcome.InstanceIdentifier
			}
			if outcome.Phase == status.SyncPhaseComplete {
				s.LastSuccess = &now
				s.AttemptCount = 0
				s.FailedPartners = outcome.FailedPartners
			} else {
				s.AttemptCount++
			}
		})
	}()

	slog.Info("Starting configuration client run")

	result, syncErr := c.manager.PerformSync(ctx)
	if syncErr != nil {
		outcome.ReturnCode = syncErr.Code
		outcome.Description = syncErr.Message
		slog.Error("Configuration client run failed",
			"code", syncErr.Code,
			"phase", syncErr.Phase,
			"error", syncErr.Message)
		return false
	}

	outcome.ReturnCode = globalconf.ErrorCodeOK
	outcome.Description = status.Describe(globalconf.ErrorCodeOK)
	outcome.Phase = status.SyncPhaseComplete
	outcome.RunID = result.RunID
	outcome.InstanceIdentifier = result.InstanceIdentifier
	outcome.FailedPartners = result.FailedPartners()
	span.SetAttributes(
		otel.AttrRunID.String(result.RunID),
		otel.AttrInstance.String(result.InstanceIdentifier),
		otel.AttrPartners.Int(len(result.Partners)),
	)
	slog.Info("Configuration client run completed successfully",
		"run_id", result.RunID,
		"instance", result.InstanceIdentifier,
		"partners", len(result.Partners),
		"duration", result.Duration)
	return true
}
