package download

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

func TestFileSink_Commit(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	file := globalconf.File{
		ContentIdentifier: globalconf.ContentIDSharedParameters,
		ContentLocation:   "/V2/shared-params.xml",
		Hash:              "aGFzaA==",
		HashAlgorithmID:   "SHA-512",
		ExpirationDate:    expires,
		Version:           3,
	}
	path := filepath.Join(root, "EE", globalconf.SharedParametersFileName)

	require.NoError(t, FileSink{}.Commit([]Staged{{File: file, Path: path, Content: []byte("content")}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.NoFileExists(t, path+".tmp")

	var meta globalconf.FileMetadata
	raw, err := os.ReadFile(globalconf.MetadataPath(path))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, file.Metadata(), meta)

	// Unchanged files keep their content and get fresh metadata
	file.ExpirationDate = expires.Add(time.Hour)
	require.NoError(t, FileSink{}.Commit([]Staged{{File: file, Path: path, Unchanged: true}}))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	raw, err = os.ReadFile(globalconf.MetadataPath(path))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.True(t, meta.ExpirationDate.Equal(expires.Add(time.Hour)))
}

func TestFileSink_CommitEmptyContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content []byte
	}{
		{name: "nil body", content: nil},
		{name: "empty body", content: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "EE", "monitoring-params.xml")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
			require.NoError(t, os.WriteFile(path, []byte("stale"), 0600))

			file := globalconf.File{ContentIdentifier: "MONITORING", ContentLocation: "/V2/EE/monitoring-params.xml"}
			require.NoError(t, FileSink{}.Commit([]Staged{{File: file, Path: path, Content: tt.content}}))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Empty(t, data, "an empty download replaces the stale copy")
		})
	}
}

func TestSweepCleanup_Clean(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "EE")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0750))

	write := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0600))
		return p
	}
	kept := write("shared-params.xml")
	keptMeta := write("shared-params.xml.metadata")
	stale := write("old.xml")
	staleMeta := write("old.xml.metadata")
	nested := write(filepath.Join("nested", "file"))
	marker := write(globalconf.InstanceIdentifierFileName)

	needed := map[string]struct{}{kept: {}, keptMeta: {}}
	require.NoError(t, SweepCleanup{}.Clean(dir, needed))

	assert.FileExists(t, kept)
	assert.FileExists(t, keptMeta)
	assert.FileExists(t, marker)
	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, staleMeta)
	assert.NoFileExists(t, nested)

	require.NoError(t, SweepCleanup{}.Clean(filepath.Join(dir, "missing"), nil),
		"a missing instance directory has nothing to clean")
}

func TestResult(t *testing.T) {
	t.Parallel()

	first := errors.New("first")
	second := errors.New("second")
	a := globalconf.Location{DownloadURL: "http://a"}
	b := globalconf.Location{DownloadURL: "http://b"}

	r := &Result{}
	r.addFailure(a, first)
	r.addFailure(b, second)

	assert.False(t, r.Success())
	assert.Equal(t, second, r.LastErr())
	assert.ErrorIs(t, r.Err(), first)
	assert.ErrorIs(t, r.Err(), second)
	assert.Equal(t, map[string]error{"http://a": first, "http://b": second}, r.Failures())

	ok := &Result{Configuration: &globalconf.Configuration{}}
	assert.True(t, ok.Success())
	assert.NoError(t, ok.Err())
	assert.NoError(t, ok.LastErr())
}
