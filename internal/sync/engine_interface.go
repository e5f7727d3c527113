// Package sync replays hostel writes queued while offline.
package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// ResyncEngineInterface defines the resync operations the application depends on.
// This interface allows for mocking in tests and alternative implementations.
type ResyncEngineInterface interface {
	// Resync replays the offline queue, clears it and refreshes the data store.
	Resync(ctx context.Context) (*ResyncResult, error)

	// SetEventHandler sets the handler notified while a resync runs.
	SetEventHandler(handler ResyncEventHandler)

	// Status returns the current resync status.
	Status() ResyncStatus

	// LastResync returns when the last resync finished without error.
	LastResync() *time.Time

	// LastError returns the error of the last resync, if any.
	LastError() error
}

// Replayer issues the remote writes a queued action stands for.
// *api.Client satisfies it.
type Replayer interface {
	CreateHostel(ctx context.Context, in models.HostelInput) (*models.Hostel, error)
	UpdateHostel(ctx context.Context, id models.ID, in models.HostelInput) (*models.Hostel, error)
	DeleteHostel(ctx context.Context, id models.ID) error
}

// Refresher reloads authoritative state after a resync.
// *store.HostelStore satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ActionQueue is the part of the offline queue a resync consumes.
// *queue.Queue satisfies it.
type ActionQueue interface {
	Drain() ([]models.QueuedAction, error)
	Clear() error
}
