package download

import (
	"go.uber.org/multierr"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Attempt is one failed download attempt against a location
type Attempt struct {
	Location globalconf.Location
	Err      error
}

// Result is the outcome of downloading one source. It holds either the configuration of the
// location that succeeded or the retryable failures of every attempted location. A fatal error
// stops the download before all locations were tried.
type Result struct {
	Source        globalconf.Source
	Configuration *globalconf.Configuration

	// Attempts lists the failed attempts in the order they were made
	Attempts []Attempt

	fatal error
}

// Success reports whether a location succeeded
func (r *Result) Success() bool {
	return r != nil && r.Configuration != nil
}

// Fatal returns the error that stopped the download, if any
func (r *Result) Fatal() error {
	return r.fatal
}

// Failures returns the failure of every attempted location keyed by download URL
func (r *Result) Failures() map[string]error {
	failures := make(map[string]error, len(r.Attempts))
	for _, a := range r.Attempts {
		failures[a.Location.DownloadURL] = a.Err
	}
	return failures
}

// LastErr returns the representative error of a failed download: the fatal error, or else
// the error of the last attempted location.
func (r *Result) LastErr() error {
	if r.Success() {
		return nil
	}
	if r.fatal != nil {
		return r.fatal
	}
	if len(r.Attempts) == 0 {
		return globalconf.WithCode(globalconf.ErrorCodeCannotDownloadConf, errNoLocations)
	}
	return r.Attempts[len(r.Attempts)-1].Err
}

// Err combines every failure of the download
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	var err error
	for _, a := range r.Attempts {
		err = multierr.Append(err, a.Err)
	}
	if r.fatal != nil {
		err = multierr.Append(err, r.fatal)
	}
	if err == nil {
		err = r.LastErr()
	}
	return err
}

func (r *Result) addFailure(loc globalconf.Location, err error) {
	r.Attempts = append(r.Attempts, Attempt{Location: loc, Err: err})
}
