package status

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/globalconf-client/internal/globalconf"
)

// Tracker keeps the current diagnostics status in memory and persists every update.
// It is safe for concurrent use.
type Tracker struct {
	persistence StatusPersistence

	mu      sync.RWMutex
	current *DiagnosticsStatus
}

// NewTracker creates a tracker. persistence may be nil to keep the status in memory only.
func NewTracker(persistence StatusPersistence) *Tracker {
	return &Tracker{persistence: persistence}
}

// Initialize loads the persisted status, or starts from the uninitialized status when there is
// none. The next update time is set to next either way.
func (t *Tracker) Initialize(ctx context.Context, now, next time.Time) {
	var loaded *DiagnosticsStatus
	if t.persistence != nil {
		var err error
		loaded, err = t.persistence.LoadStatus(ctx)
		if err != nil {
			slog.Warn("Failed to load persisted status, starting uninitialized", "error", err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if loaded == nil {
		loaded = NewUninitialized(now, next)
	}
	loaded.NextUpdate = &next
	t.current = loaded
}

// Get returns a copy of the current status
func (t *Tracker) Get() DiagnosticsStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return DiagnosticsStatus{
			ReturnCode:  globalconf.ErrorCodeUninitialized,
			Description: Describe(globalconf.ErrorCodeUninitialized),
			Phase:       SyncPhaseUninitialized,
		}
	}
	s := *t.current
	s.FailedPartners = slices.Clone(t.current.FailedPartners)
	return s
}

// Update applies fn to the current status under the tracker lock and persists the result.
// Persistence errors are logged and do not fail the update.
func (t *Tracker) Update(ctx context.Context, fn func(s *DiagnosticsStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		t.current = &DiagnosticsStatus{Phase: SyncPhaseUninitialized}
	}
	fn(t.current)

	if t.persistence == nil {
		return
	}
	if err := t.persistence.SaveStatus(ctx, t.current); err != nil {
		slog.Error("Error persisting status", "error", err)
	}
}
