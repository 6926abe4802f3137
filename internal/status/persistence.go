// Package status provides diagnostics status tracking and persistence for the configuration client.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the default name of the status file
	StatusFileName = "confclient-status.json"
)

// StatusPersistence defines the interface for diagnostics status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status to persistent storage
	SaveStatus(ctx context.Context, status *DiagnosticsStatus) error

	// LoadStatus loads the status from persistent storage.
	// Returns nil if nothing was saved yet (first run).
	LoadStatus(ctx context.Context) (*DiagnosticsStatus, error)
}

// fileStatusPersistence implements StatusPersistence using a local JSON file
type fileStatusPersistence struct {
	path string
}

// NewFileStatusPersistence creates a new file-based status persistence writing to path
func NewFileStatusPersistence(path string) StatusPersistence {
	return &fileStatusPersistence{
		path: path,
	}
}

// SaveStatus saves the status to the JSON file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *DiagnosticsStatus) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	// Marshal status to JSON with pretty printing for readability
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// LoadStatus loads the status from the JSON file
func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*DiagnosticsStatus, error) {
	// #nosec G304 -- the status path comes from trusted configuration
	data, err := os.ReadFile(filepath.Clean(f.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status DiagnosticsStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}

	return &status, nil
}
