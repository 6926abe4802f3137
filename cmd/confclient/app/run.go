package app

import (
	"context"
	"log/slog"

	confclientapp "github.com/stacklok/globalconf-client/internal/app"
	"github.com/stacklok/globalconf-client/internal/config"
	"github.com/stacklok/globalconf-client/internal/globalconf"
	pkgsync "github.com/stacklok/globalconf-client/internal/sync"
)

// runOnce performs a single run of the configuration client
func runOnce(ctx context.Context, cfg *config.Config, opts ...pkgsync.Option) (*pkgsync.Result, *pkgsync.Error) {
	client, err := confclientapp.NewSyncClient(cfg, nil, opts...)
	if err != nil {
		return nil, &pkgsync.Error{
			Err:     err,
			Message: err.Error(),
			Code:    globalconf.ErrorCodeInternal,
		}
	}

	result, runErr := client.PerformSync(ctx)
	if runErr != nil {
		return nil, runErr
	}

	slog.Info("Configuration client run completed",
		"run_id", result.RunID,
		"instance", result.InstanceIdentifier,
		"partners", len(result.Partners),
		"failed_partners", result.FailedPartners(),
		"duration", result.Duration)
	return result, nil
}

// runError converts a failed run into a command error with the run's exit code
func runError(runErr *pkgsync.Error) error {
	if runErr == nil {
		return nil
	}
	return &ExitError{Code: runErr.Code, Err: runErr}
}
