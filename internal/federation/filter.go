// Package federation decides which federation partner instances are downloaded.
package federation

import (
	"log/slog"
	"strings"
)

// Mode is the federation mode derived from the allowed instances setting
type Mode string

const (
	// ModeNone allows no partner instances
	ModeNone Mode = "NONE"

	// ModeAll allows every partner instance
	ModeAll Mode = "ALL"

	// ModeCustom allows an explicit list of partner instances
	ModeCustom Mode = "CUSTOM"
)

// Filter is a predicate on instance identifiers. The own instance always passes.
type Filter struct {
	own     string
	mode    Mode
	allowed map[string]struct{}
}

// NewFilter parses a comma-separated list of allowed instance identifiers. The keywords
// NONE and ALL are matched case-insensitively; NONE anywhere in the list wins, and an
// empty list means NONE.
func NewFilter(ownInstance, allowedFederations string) *Filter {
	f := &Filter{
		own:     ownInstance,
		mode:    ModeNone,
		allowed: make(map[string]struct{}),
	}

	var hasNone, hasAll bool
	for _, item := range strings.Split(allowedFederations, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		switch item {
		case "":
			continue
		case strings.ToLower(string(ModeNone)):
			hasNone = true
		case strings.ToLower(string(ModeAll)):
			hasAll = true
		default:
			f.allowed[item] = struct{}{}
		}
	}

	switch {
	case hasNone:
		f.mode = ModeNone
	case hasAll:
		f.mode = ModeAll
	case len(f.allowed) > 0:
		f.mode = ModeCustom
	}
	if f.mode != ModeCustom {
		f.allowed = nil
	}

	slog.Debug("Federation filter initialized", "mode", f.mode, "allowed", len(f.allowed))
	return f
}

// Mode returns the effective federation mode
func (f *Filter) Mode() Mode {
	return f.mode
}

// ShouldDownload reports whether configuration of instance should be downloaded
func (f *Filter) ShouldDownload(instance string) bool {
	if instance == f.own {
		return true
	}
	switch f.mode {
	case ModeAll:
		return true
	case ModeCustom:
		_, ok := f.allowed[strings.ToLower(strings.TrimSpace(instance))]
		return ok
	}
	return false
}
