package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// ResyncStatus represents the current resync status.
type ResyncStatus string

const (
	ResyncStatusIdle    ResyncStatus = "idle"
	ResyncStatusSyncing ResyncStatus = "syncing"
	ResyncStatusFailed  ResyncStatus = "failed"
)

// ResyncEventType identifies a ResyncEvent.
type ResyncEventType string

const (
	EventResyncStarted   ResyncEventType = "resync.started"
	EventActionReplayed  ResyncEventType = "resync.replayed"
	EventActionDropped   ResyncEventType = "resync.dropped"
	EventResyncCompleted ResyncEventType = "resync.completed"
	EventResyncFailed    ResyncEventType = "resync.failed"
)

// ResyncEvent is emitted while a resync runs.
type ResyncEvent struct {
	Type   ResyncEventType
	Action *models.QueuedAction
	Total  int
	Err    error
}

// ResyncEventHandler receives resync events on the resyncing goroutine.
type ResyncEventHandler func(ResyncEvent)

// ResyncResult represents the result of a resync.
type ResyncResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Replayed  int
	Failed    int
	// Dropped holds the actions whose replay failed. They are gone from the queue.
	Dropped []models.QueuedAction
	Error   string
}

// Engine replays the offline queue against the remote API.
//
// Replay is at-most-once and best-effort: each queued action is attempted
// once, in order, and a failure is logged and skipped. The queue is cleared
// after every pass whatever the outcome, then the data store is refreshed so
// that the server's view replaces any optimistic state.
type Engine struct {
	queue     ActionQueue
	remote    Replayer
	refresher Refresher

	// run serialises resyncs so replays never interleave.
	run sync.Mutex

	mu         sync.RWMutex
	status     ResyncStatus
	lastResync *time.Time
	lastErr    error
	handler    ResyncEventHandler
}

// NewEngine creates a new Engine.
func NewEngine(queue ActionQueue, remote Replayer, refresher Refresher) *Engine {
	return &Engine{
		queue:     queue,
		remote:    remote,
		refresher: refresher,
		status:    ResyncStatusIdle,
	}
}

var _ ResyncEngineInterface = (*Engine)(nil)

// SetEventHandler sets the handler notified while a resync runs.
func (e *Engine) SetEventHandler(handler ResyncEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// Status returns the current resync status.
func (e *Engine) Status() ResyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// LastResync returns when the last resync finished without error.
func (e *Engine) LastResync() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResync
}

// LastError returns the error of the last resync.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Resync drains the queue, replays each action sequentially, clears the queue
// and refreshes the data store. A resync requested while another is running
// starts after it finishes.
//
// The returned error reports a failure to read or clear the queue or to
// refresh; failed replays only show up in the result.
func (e *Engine) Resync(ctx context.Context) (*ResyncResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.run.Lock()
	defer e.run.Unlock()

	e.setStatus(ResyncStatusSyncing)
	result := &ResyncResult{StartTime: time.Now()}
	var runErr error

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		e.mu.Lock()
		e.lastErr = runErr
		if runErr != nil {
			e.status = ResyncStatusFailed
			result.Error = runErr.Error()
		} else {
			e.status = ResyncStatusIdle
			end := result.EndTime
			e.lastResync = &end
		}
		e.mu.Unlock()

		if runErr != nil {
			e.emit(ResyncEvent{Type: EventResyncFailed, Err: runErr})
		} else {
			e.emit(ResyncEvent{Type: EventResyncCompleted, Total: result.Replayed})
		}
	}()

	// Step 1: Drain the queue. A corrupt queue cannot be replayed but is
	// still cleared below so it does not block every future resync.
	actions, err := e.queue.Drain()
	if err != nil {
		logging.Error("Failed to read offline queue", err)
		runErr = fmt.Errorf("drain failed: %w", err)
	}

	logging.Info("Back online, syncing offline data", map[string]interface{}{"queued": len(actions)})
	e.emit(ResyncEvent{Type: EventResyncStarted, Total: len(actions)})

	// Step 2: Replay in FIFO order, one at a time
	for i := range actions {
		action := actions[i]
		if err := e.replay(ctx, action); err != nil {
			logging.Warn("Failed to sync offline action", map[string]interface{}{
				"type":  action.Type,
				"index": i,
				"error": err.Error(),
			})
			result.Failed++
			result.Dropped = append(result.Dropped, action)
			e.emit(ResyncEvent{Type: EventActionDropped, Action: &action, Total: len(actions), Err: err})
			continue
		}
		result.Replayed++
		e.emit(ResyncEvent{Type: EventActionReplayed, Action: &action, Total: len(actions)})
	}

	// Step 3: Clear unconditionally
	if err := e.queue.Clear(); err != nil {
		logging.Error("Failed to clear offline queue", err)
		if runErr == nil {
			runErr = fmt.Errorf("clear failed: %w", err)
		}
	}

	// Step 4: Refetch authoritative state
	if err := e.refresher.Refresh(ctx); err != nil {
		logging.Error("Failed to refresh after resync", err)
		if runErr == nil {
			runErr = fmt.Errorf("refresh failed: %w", err)
		}
	}

	return result, runErr
}

// replay issues the remote write for one action.
func (e *Engine) replay(ctx context.Context, action models.QueuedAction) error {
	switch action.Type {
	case models.ActionCreate:
		in, err := action.CreatePayload()
		if err != nil {
			return err
		}
		_, err = e.remote.CreateHostel(ctx, in)
		return err

	case models.ActionUpdate:
		u, err := action.UpdatePayload()
		if err != nil {
			return err
		}
		_, err = e.remote.UpdateHostel(ctx, u.ID, u.HostelInput)
		return err

	case models.ActionDelete:
		id, err := action.DeletePayload()
		if err != nil {
			return err
		}
		return e.remote.DeleteHostel(ctx, id)

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (e *Engine) setStatus(s ResyncStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

func (e *Engine) emit(ev ResyncEvent) {
	e.mu.RLock()
	h := e.handler
	e.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}
