package status

import (
	"time"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// SyncPhase represents the state of the configuration client runs
type SyncPhase string

const (
	// SyncPhaseUninitialized means no run has finished yet
	SyncPhaseUninitialized SyncPhase = "Uninitialized"

	// SyncPhaseSyncing means a run is currently in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last run completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last run failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// DiagnosticsStatus is the outcome of the latest configuration client run, as reported by the
// status endpoint
type DiagnosticsStatus struct {
	// ReturnCode is the diagnostics error code of the last run, 0 on success
	ReturnCode int `json:"returnCode"`

	// Description is a human readable message for ReturnCode
	Description string `json:"description,omitempty"`

	// PrevUpdate is the time the last run finished
	PrevUpdate *time.Time `json:"prevUpdate,omitempty"`

	// NextUpdate is the time the next run is scheduled
	NextUpdate *time.Time `json:"nextUpdate,omitempty"`

	// RunID identifies the last run
	RunID string `json:"runId,omitempty"`

	Phase SyncPhase `json:"phase"`

	// InstanceIdentifier is the primary instance of the last run
	InstanceIdentifier string `json:"instanceIdentifier,omitempty"`

	// LastSuccess is the time of the last successful run
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// AttemptCount is the number of failed runs since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// FailedPartners lists the federation partners that could not be downloaded in the last run
	FailedPartners []string `json:"failedPartners,omitempty"`
}

// NewUninitialized returns the status reported before the first run finishes
func NewUninitialized(now, next time.Time) *DiagnosticsStatus {
	return &DiagnosticsStatus{
		ReturnCode:  globalconf.ErrorCodeUninitialized,
		Description: Describe(globalconf.ErrorCodeUninitialized),
		PrevUpdate:  &now,
		NextUpdate:  &next,
		Phase:       SyncPhaseUninitialized,
	}
}

// Describe returns the description of a diagnostics error code
func Describe(code int) string {
	switch code {
	case globalconf.ErrorCodeOK:
		return "OK"
	case globalconf.ErrorCodeRunInProgress:
		return "Configuration client run already in progress"
	case globalconf.ErrorCodeAnchorNotForExternalSource:
		return "Configuration anchor is not for an external source"
	case globalconf.ErrorCodeMalformedAnchor:
		return "Malformed configuration anchor"
	case globalconf.ErrorCodeAnchorNotFound:
		return "Configuration anchor file not found"
	case globalconf.ErrorCodeMissingPrivateParams:
		return "Configuration does not contain private parameters"
	case globalconf.ErrorCodeCannotDownloadConf:
		return "Cannot download global configuration"
	case globalconf.ErrorCodeExpiredConf:
		return "Global configuration is expired"
	case globalconf.ErrorCodeInvalidSignatureValue:
		return "Global configuration signature is invalid"
	case globalconf.ErrorCodeUninitialized:
		return "Configuration client has not finished its first run"
	}
	return "Internal error"
}
