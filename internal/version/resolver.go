// Package version negotiates the global configuration version requested from a location.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// QueryParameter is the query parameter carrying the requested configuration version
const QueryParameter = "version"

const (
	// DefaultMinVersion is the oldest configuration version the client understands
	DefaultMinVersion = 2

	// DefaultMaxVersion is the newest configuration version the client understands
	DefaultMaxVersion = 4
)

// Resolver returns the download URL to use for a location
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// StatusChecker reports the HTTP status a URL answers with
type StatusChecker interface {
	Status(ctx context.Context, url string) (int, error)
}

// Fixed always requests one configuration version
type Fixed struct {
	Version int
}

// Resolve sets or overwrites the version query parameter
func (f Fixed) Resolve(_ context.Context, rawURL string) (string, error) {
	slog.Debug("Configuration version is enforced", "version", f.Version)
	return withVersion(rawURL, f.Version)
}

// Range picks the newest version between Min and Max that the location serves
type Range struct {
	Min    int
	Max    int
	Checker StatusChecker
}

// Resolve respects an existing version parameter, otherwise tries Max down to Min+1.
// Min itself is never requested.
func (r Range) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL %q: %w", rawURL, err)
	}
	if u.Query().Has(QueryParameter) {
		slog.Debug("Respecting version query parameter of the download URL", "url", rawURL)
		return rawURL, nil
	}

	for v := r.Max; v > r.Min; v-- {
		candidate, err := withVersion(rawURL, v)
		if err != nil {
			return "", err
		}
		status, err := r.Checker.Status(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check configuration version %d: %w", v, err)
		}
		if status != http.StatusNotFound {
			return candidate, nil
		}
		slog.Info("Configuration version not available, falling back",
			"version", v,
			"status", status,
			"fallback", v-1)
	}

	return withVersion(rawURL, r.Min)
}

func withVersion(rawURL string, v int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(QueryParameter, strconv.Itoa(v))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Mode selects a resolver strategy
type Mode string

const (
	// ModeFixed always requests the fixed version
	ModeFixed Mode = "fixed"

	// ModeRange tries a descending version range
	ModeRange Mode = "range"
)

// New returns the resolver for mode
func New(mode Mode, fixed, minVersion, maxVersion int, checker StatusChecker) (Resolver, error) {
	switch mode {
	case ModeFixed:
		return Fixed{Version: fixed}, nil
	case ModeRange, "":
		if minVersion > maxVersion {
			return nil, fmt.Errorf("min version %d is greater than max version %d", minVersion, maxVersion)
		}
		return Range{Min: minVersion, Max: maxVersion, Checker: checker}, nil
	}
	return nil, fmt.Errorf("unsupported version mode %q", mode)
}
