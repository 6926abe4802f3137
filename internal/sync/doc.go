// Package sync implements the configuration client: one run loads the trust anchor, downloads
// the primary configuration and then the shared parameters of every allowed federation partner.
//
// # Run phases
//
// A run moves through Init, AnchorLoaded, PrimaryDownloaded, PartnersDiscovered,
// PartnersFiltered, Reconciled and Idle, and starts from Init on every invocation.
//
//   - The anchor is reloaded when it was never loaded or its content changed. A missing or
//     malformed anchor fails the run.
//   - The primary configuration is downloaded without a content filter. Failure fails the
//     run and the previous configuration on disk stays untouched.
//   - Partners are read from the primary private parameters on disk. Without private
//     parameters there are no partners.
//   - Partners are filtered by the allowed federations setting, instance directories of
//     dropped partners are deleted and the remaining partners are downloaded. Partner
//     failures are logged and recorded in the Result, never returned as an Error.
//
// # Errors
//
// Error is a fatal run-level error carrying a diagnostics code. Per-location failures stay
// inside download.Result.
//
// # Coordinator Package
//
// The sync/coordinator subpackage schedules runs in the background and publishes their
// outcome to the status tracker.
//
// # Validate mode
//
// Client options turn off persistence, directory cleanup and the instance identifier marker.
// Together with a Validator attached as content observer this gives the validate command.
package sync
