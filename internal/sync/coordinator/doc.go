// Package coordinator provides background scheduling of configuration client runs.
//
// This package implements the orchestration layer on top of sync.Manager and handles:
//
//   - An initial run on startup and periodic runs on a jittered interval
//   - Exponential backoff after failed runs, bounded by the max backoff
//   - Manual triggers that share a run already in progress
//   - Publishing every outcome to the status tracker
//   - Graceful shutdown
//
// # Usage Example
//
//	tracker := status.NewTracker(status.NewFileStatusPersistence(path))
//	coordinator := coordinator.New(client, tracker, coordinator.WithInterval(time.Minute))
//
//	go coordinator.Start(ctx)
//
//	// ... run admin server, which calls coordinator.Trigger on /execute ...
//
//	coordinator.Stop()
//
// # Error Handling
//
// Failed runs are logged and published with their diagnostics code. The coordinator keeps
// running and retries on the backoff schedule. Status persistence errors are logged but do
// not stop the schedule.
package coordinator
