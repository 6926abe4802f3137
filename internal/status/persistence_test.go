package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	// Create temporary directory for test
	path := filepath.Join(t.TempDir(), "state", StatusFileName)

	persistence := NewFileStatusPersistence(path)
	require.NotNil(t, persistence)

	now := time.Now().UTC().Truncate(time.Second)
	next := now.Add(time.Minute)
	testStatus := &DiagnosticsStatus{
		ReturnCode:         globalconf.ErrorCodeCannotDownloadConf,
		Description:        Describe(globalconf.ErrorCodeCannotDownloadConf),
		PrevUpdate:         &now,
		NextUpdate:         &next,
		RunID:              "run-1",
		Phase:              SyncPhaseFailed,
		InstanceIdentifier: "EE",
		AttemptCount:       2,
		FailedPartners:     []string{"FI"},
	}

	ctx := context.Background()
	err := persistence.SaveStatus(ctx, testStatus)
	require.NoError(t, err)

	// Verify file was created
	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, testStatus.ReturnCode, loaded.ReturnCode)
	require.Equal(t, testStatus.Description, loaded.Description)
	require.Equal(t, testStatus.RunID, loaded.RunID)
	require.Equal(t, testStatus.Phase, loaded.Phase)
	require.Equal(t, testStatus.AttemptCount, loaded.AttemptCount)
	require.Equal(t, testStatus.FailedPartners, loaded.FailedPartners)
	require.True(t, now.Equal(*loaded.PrevUpdate))
	require.True(t, next.Equal(*loaded.NextUpdate))
}

func TestFileStatusPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(filepath.Join(t.TempDir(), StatusFileName))

	// Load non-existent status should return nil for the first run
	loaded, err := persistence.LoadStatus(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestFileStatusPersistence_LoadCorrupted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStatusPersistence(path).LoadStatus(context.Background())
	require.Error(t, err)
}

func TestFileStatusPersistence_AtomicWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StatusFileName)
	persistence := NewFileStatusPersistence(path)

	err := persistence.SaveStatus(context.Background(), &DiagnosticsStatus{Phase: SyncPhaseComplete})
	require.NoError(t, err)

	// Verify temporary file was cleaned up
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "Temporary file should not exist after save")
}
