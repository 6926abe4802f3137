package status_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/status"
	"github.com/stacklok/globalconf-client/internal/status/mocks"
)

func TestTracker_InitializeUninitialized(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockStatusPersistence(ctrl)
	persistence.EXPECT().LoadStatus(gomock.Any()).Return(nil, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(persistence)
	tracker.Initialize(context.Background(), now, now.Add(time.Minute))

	got := tracker.Get()
	assert.Equal(t, globalconf.ErrorCodeUninitialized, got.ReturnCode)
	assert.Equal(t, status.SyncPhaseUninitialized, got.Phase)
	require.NotNil(t, got.NextUpdate)
	assert.Equal(t, now.Add(time.Minute), *got.NextUpdate)
}

func TestTracker_InitializeFromPersisted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockStatusPersistence(ctrl)
	persistence.EXPECT().LoadStatus(gomock.Any()).Return(&status.DiagnosticsStatus{
		ReturnCode: globalconf.ErrorCodeOK,
		RunID:      "previous",
		Phase:      status.SyncPhaseComplete,
	}, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(persistence)
	tracker.Initialize(context.Background(), now, now.Add(time.Hour))

	got := tracker.Get()
	assert.Equal(t, "previous", got.RunID)
	assert.Equal(t, status.SyncPhaseComplete, got.Phase)
	assert.Equal(t, now.Add(time.Hour), *got.NextUpdate)
}

func TestTracker_InitializeLoadError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockStatusPersistence(ctrl)
	persistence.EXPECT().LoadStatus(gomock.Any()).Return(nil, errors.New("corrupted"))

	now := time.Now()
	tracker := status.NewTracker(persistence)
	tracker.Initialize(context.Background(), now, now)

	assert.Equal(t, status.SyncPhaseUninitialized, tracker.Get().Phase)
}

func TestTracker_Update(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockStatusPersistence(ctrl)
	persistence.EXPECT().SaveStatus(gomock.Any(), gomock.Any()).Return(nil)
	persistence.EXPECT().SaveStatus(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	tracker := status.NewTracker(persistence)
	tracker.Update(context.Background(), func(s *status.DiagnosticsStatus) {
		s.Phase = status.SyncPhaseFailed
		s.FailedPartners = []string{"FI"}
	})

	got := tracker.Get()
	assert.Equal(t, status.SyncPhaseFailed, got.Phase)

	// the returned copy does not alias the tracked status
	got.FailedPartners[0] = "changed"
	assert.Equal(t, []string{"FI"}, tracker.Get().FailedPartners)

	// persistence failures keep the in-memory update
	tracker.Update(context.Background(), func(s *status.DiagnosticsStatus) {
		s.Phase = status.SyncPhaseComplete
	})
	assert.Equal(t, status.SyncPhaseComplete, tracker.Get().Phase)
}

func TestTracker_InMemory(t *testing.T) {
	t.Parallel()

	tracker := status.NewTracker(nil)
	assert.Equal(t, globalconf.ErrorCodeUninitialized, tracker.Get().ReturnCode)

	tracker.Update(context.Background(), func(s *status.DiagnosticsStatus) {
		s.ReturnCode = globalconf.ErrorCodeOK
	})
	assert.Equal(t, globalconf.ErrorCodeOK, tracker.Get().ReturnCode)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "OK", status.Describe(globalconf.ErrorCodeOK))
	assert.Equal(t, "Internal error", status.Describe(globalconf.ErrorCodeInternal))
	assert.Equal(t, "Internal error", status.Describe(999))
	assert.Contains(t, status.Describe(globalconf.ErrorCodeExpiredConf), "expired")
}
