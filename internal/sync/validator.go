package sync

import (
	"log/slog"
	"sync/atomic"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// ValidationMode selects what a validate run requires from the downloaded configuration
type ValidationMode string

const (
	// ValidateAny accepts any configuration that downloads
	ValidateAny ValidationMode = "any"

	// ValidatePrivateParams requires private parameters to be present
	ValidatePrivateParams ValidationMode = "private-params"

	// ValidateExternalSource requires shared parameters and no private parameters
	ValidateExternalSource ValidationMode = "external-source"
)

// Validator observes the content of a validate run and turns it into an exit code
type Validator struct {
	expected        string
	codeWhenInvalid int
	rejectPrivate   bool

	valid       atomic.Bool
	privateSeen atomic.Bool
}

// NewValidator creates a validator for mode
func NewValidator(mode ValidationMode) *Validator {
	switch mode {
	case ValidatePrivateParams:
		return &Validator{
			expected:        globalconf.ContentIDPrivateParameters,
			codeWhenInvalid: globalconf.ErrorCodeMissingPrivateParams,
		}
	case ValidateExternalSource:
		return &Validator{
			expected:        globalconf.ContentIDSharedParameters,
			codeWhenInvalid: globalconf.ErrorCodeAnchorNotForExternalSource,
			rejectPrivate:   true,
		}
	}
	return &Validator{}
}

// Observe records one downloaded file. It is safe for concurrent use.
func (v *Validator) Observe(f globalconf.File) {
	slog.Debug("Validating configuration file", "content_identifier", f.ContentIdentifier)

	if v.rejectPrivate {
		if globalconf.IsContentID(f.ContentIdentifier, globalconf.ContentIDPrivateParameters) {
			v.privateSeen.Store(true)
		}
		if v.privateSeen.Load() {
			v.valid.Store(false)
			return
		}
	}

	if v.valid.Load() {
		return
	}
	v.valid.Store(v.expected == "" || globalconf.IsContentID(f.ContentIdentifier, v.expected))
}

// Valid reports whether the observed content satisfies the validation mode
func (v *Validator) Valid() bool {
	return v.valid.Load()
}

// ExitCode returns the process exit code of a validate run that ended with runErr
func (v *Validator) ExitCode(runErr *Error) int {
	if runErr != nil {
		return runErr.Code
	}
	if v.expected == "" || v.Valid() {
		return globalconf.ErrorCodeOK
	}
	return v.codeWhenInvalid
}
