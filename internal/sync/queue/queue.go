// Package queue provides the persistent queue of hostel writes made while offline.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/storage"
)

// Queue is an append-only list of QueuedActions persisted as one JSON array
// under storage.KeyOfflineQueue. Every Enqueue rewrites the whole array
// before returning, so a crash right after Enqueue loses nothing.
//
// The mutex serialises read-modify-write inside one process. Processes sharing
// a data directory are not coordinated with each other.
type Queue struct {
	store storage.Storage
	mu    sync.Mutex
}

// New creates a Queue over store.
func New(store storage.Storage) *Queue {
	return &Queue{store: store}
}

// Enqueue appends action to the end of the queue.
func (q *Queue) Enqueue(action models.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.readLocked()
	if err != nil {
		return err
	}
	actions = append(actions, action)

	data, err := json.Marshal(actions)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode offline queue", err)
	}
	if err := q.store.Set(storage.KeyOfflineQueue, string(data)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to persist offline queue", err)
	}

	logging.Debug("Queued offline action", map[string]interface{}{
		"type":  action.Type,
		"depth": len(actions),
	})
	return nil
}

// Drain returns every queued action in insertion order without removing any.
// A queue that was never written is empty.
func (q *Queue) Drain() ([]models.QueuedAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readLocked()
}

// Clear removes every queued action.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Remove(storage.KeyOfflineQueue); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear offline queue", err)
	}
	return nil
}

// Len returns the number of queued actions.
func (q *Queue) Len() (int, error) {
	actions, err := q.Drain()
	return len(actions), err
}

func (q *Queue) readLocked() ([]models.QueuedAction, error) {
	raw, ok, err := q.store.Get(storage.KeyOfflineQueue)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read offline queue", err)
	}
	if !ok || raw == "" {
		return []models.QueuedAction{}, nil
	}

	var actions []models.QueuedAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "offline queue is corrupt", fmt.Errorf("decode: %w", err))
	}
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	return actions, nil
}
