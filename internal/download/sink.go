package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Staged is a verified configuration file waiting to be committed
type Staged struct {
	File    globalconf.File
	Path    string
	Content []byte

	// Unchanged is set when the local copy already matches the declared hash and only the
	// metadata needs to be refreshed. Content is ignored then.
	Unchanged bool
}

// PersistSink commits a verified batch of files
type PersistSink interface {
	Commit(batch []Staged) error
}

// CleanupPolicy removes files of an instance directory that are no longer needed
type CleanupPolicy interface {
	Clean(instanceDir string, needed map[string]struct{}) error
}

// FileSink writes content and metadata sidecars to disk
type FileSink struct{}

// Commit writes every file of the batch. Unchanged files only get their metadata refreshed.
func (FileSink) Commit(batch []Staged) error {
	for _, s := range batch {
		if err := os.MkdirAll(filepath.Dir(s.Path), 0750); err != nil {
			return fmt.Errorf("failed to create configuration directory: %w", err)
		}

		if !s.Unchanged {
			slog.Info("Saving configuration file",
				"content_identifier", s.File.ContentIdentifier,
				"path", s.Path)
			if err := writeFileAtomic(s.Path, s.Content); err != nil {
				return err
			}
		} else {
			slog.Debug("Configuration file is up to date, refreshing metadata",
				"content_identifier", s.File.ContentIdentifier,
				"expires", s.File.ExpirationDate)
		}

		meta, err := json.MarshalIndent(s.File.Metadata(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of %s: %w", s.File.ContentIdentifier, err)
		}
		if err := writeFileAtomic(globalconf.MetadataPath(s.Path), meta); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	// Write to temporary file first for atomic operation
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", tempPath, err)
	}
	return nil
}

// NopSink discards the batch
type NopSink struct{}

// Commit does nothing
func (NopSink) Commit([]Staged) error {
	return nil
}

// SweepCleanup deletes every regular file of the instance directory that is not needed
type SweepCleanup struct{}

// Clean walks instanceDir and removes unneeded files. The instance identifier marker
// and the run lock are never removed.
func (SweepCleanup) Clean(instanceDir string, needed map[string]struct{}) error {
	var errs []error
	err := filepath.WalkDir(instanceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || keep(d.Name()) {
			return nil
		}
		if _, ok := needed[filepath.Clean(path)]; ok {
			return nil
		}

		slog.Info("Deleting stale configuration file", "path", path)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", path, err))
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list %s: %w", instanceDir, err))
	}
	return errors.Join(errs...)
}

func keep(name string) bool {
	return name == globalconf.InstanceIdentifierFileName || name == globalconf.LockFileName
}

// NopCleanup keeps every file
type NopCleanup struct{}

// Clean does nothing
func (NopCleanup) Clean(string, map[string]struct{}) error {
	return nil
}
