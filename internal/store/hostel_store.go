package store

import (
	"context"
	"sync"

	"github.com/kimhsiao/hostelhub/client/internal/api"
	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
	"github.com/kimhsiao/hostelhub/client/internal/validation"
)

// Messages stored when a remote call fails without a server message.
const (
	MsgFetchHostels = "Error fetching hostels"
	MsgFetchHostel  = "Error fetching hostel"
	MsgAddHostel    = "Error adding hostel"
	MsgUpdateHostel = "Error updating hostel"
	MsgDeleteHostel = "Error deleting hostel"
)

// Remote is the part of the API the store calls. *api.Client satisfies it.
type Remote interface {
	ListHostels(ctx context.Context) (*api.HostelList, error)
	GetHostel(ctx context.Context, id models.ID) (*models.Hostel, error)
	CreateHostel(ctx context.Context, in models.HostelInput) (*models.Hostel, error)
	UpdateHostel(ctx context.Context, id models.ID, in models.HostelInput) (*models.Hostel, error)
	DeleteHostel(ctx context.Context, id models.ID) error
}

// Connectivity reports whether remote calls should be attempted.
// *connectivity.Observer satisfies it.
type Connectivity interface {
	Online() bool
}

// Enqueuer records writes made while offline. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(action models.QueuedAction) error
}

// Listener is notified with the new state after every change.
type Listener func(State)

// HostelStore owns the hostel State. Online, writes go to the API and the
// server's answer is reduced into the state. Offline, writes are queued and
// applied optimistically; optimistic records keep the client's shape until
// the next full refresh.
type HostelStore struct {
	remote Remote
	conn   Connectivity
	queue  Enqueuer

	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewHostelStore creates an empty store.
func NewHostelStore(remote Remote, conn Connectivity, queue Enqueuer) *HostelStore {
	return &HostelStore{
		remote:    remote,
		conn:      conn,
		queue:     queue,
		state:     State{Hostels: []models.Hostel{}, Status: StatusIdle},
		listeners: make(map[int]Listener),
	}
}

// State returns a snapshot of the current state.
func (s *HostelStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for state changes and returns a function that removes it.
func (s *HostelStore) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Dispatch applies a to the state and notifies listeners.
func (s *HostelStore) Dispatch(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	state := s.state
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// GetHostels loads the full collection.
func (s *HostelStore) GetHostels(ctx context.Context) error {
	s.Dispatch(SetLoading{})
	list, err := s.remote.ListHostels(ctx)
	if err != nil {
		return s.fail(err, MsgFetchHostels)
	}
	s.Dispatch(HostelsLoaded{Hostels: list.Hostels, UserCount: list.UserCount})
	return nil
}

// Refresh reloads the collection from the server. The resync engine calls it
// after replaying the offline queue.
func (s *HostelStore) Refresh(ctx context.Context) error {
	return s.GetHostels(ctx)
}

// GetHostel loads one hostel.
func (s *HostelStore) GetHostel(ctx context.Context, id models.ID) (*models.Hostel, error) {
	s.Dispatch(SetLoading{})
	h, err := s.remote.GetHostel(ctx, id)
	if err != nil {
		return nil, s.fail(err, MsgFetchHostel)
	}
	s.Dispatch(HostelLoaded{Hostel: *h})
	return h, nil
}

// AddHostel creates a hostel. Offline, the creation is queued and the
// returned hostel has no id.
func (s *HostelStore) AddHostel(ctx context.Context, in models.HostelInput) (*models.Hostel, error) {
	if err := validation.Hostel(in); err != nil {
		return nil, err
	}

	if !s.conn.Online() {
		action, err := models.NewCreateAction(in)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to queue hostel", err)
		}
		h := in.Provisional()
		return &h, s.applyOffline(action, HostelAdded{Hostel: h})
	}

	s.Dispatch(SetLoading{})
	h, err := s.remote.CreateHostel(ctx, in)
	if err != nil {
		return nil, s.fail(err, MsgAddHostel)
	}
	s.Dispatch(HostelAdded{Hostel: *h})
	return h, nil
}

// UpdateHostel replaces the writable fields of hostel id.
func (s *HostelStore) UpdateHostel(ctx context.Context, id models.ID, in models.HostelInput) (*models.Hostel, error) {
	if err := validation.Hostel(in); err != nil {
		return nil, err
	}

	if !s.conn.Online() {
		action, err := models.NewUpdateAction(id, in)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to queue hostel update", err)
		}
		h := models.HostelUpdate{ID: id, HostelInput: in}.Hostel()
		return &h, s.applyOffline(action, HostelUpdated{Hostel: h})
	}

	s.Dispatch(SetLoading{})
	h, err := s.remote.UpdateHostel(ctx, id, in)
	if err != nil {
		return nil, s.fail(err, MsgUpdateHostel)
	}
	s.Dispatch(HostelUpdated{Hostel: *h})
	return h, nil
}

// DeleteHostel deletes hostel id.
func (s *HostelStore) DeleteHostel(ctx context.Context, id models.ID) error {
	if !s.conn.Online() {
		action, err := models.NewDeleteAction(id)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to queue hostel deletion", err)
		}
		return s.applyOffline(action, HostelDeleted{ID: id})
	}

	s.Dispatch(SetLoading{})
	if err := s.remote.DeleteHostel(ctx, id); err != nil {
		return s.fail(err, MsgDeleteHostel)
	}
	s.Dispatch(HostelDeleted{ID: id})
	return nil
}

// ClearError drops the current error message.
func (s *HostelStore) ClearError() {
	s.Dispatch(ClearError{})
}

// applyOffline queues action and applies the optimistic change. The change is
// applied even when queueing fails; the queueing error is returned.
func (s *HostelStore) applyOffline(action models.QueuedAction, optimistic Action) error {
	err := s.queue.Enqueue(action)
	if err != nil {
		logging.Error("Failed to queue offline action", err, map[string]interface{}{"type": action.Type})
	}
	s.Dispatch(optimistic)
	return err
}

func (s *HostelStore) fail(err error, fallback string) error {
	msg := apperrors.Message(err, fallback)
	logging.Warn("Hostel request failed", map[string]interface{}{
		"message": msg,
		"code":    apperrors.CodeOf(err),
		"error":   err.Error(),
	})
	s.Dispatch(Failed{Message: msg})
	return err
}
