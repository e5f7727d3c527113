// Package store holds the hostel collection and applies every change to it
// through a single reducer.
package store

import (
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// Status describes what the store is doing.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// State is the store's content.
type State struct {
	Hostels   []models.Hostel
	Hostel    *models.Hostel // last hostel fetched or updated
	UserCount int
	Status    Status
	Err       string
}

// Loading reports whether a remote call is in flight.
func (s State) Loading() bool {
	return s.Status == StatusLoading
}

// Action is a state transition request. The concrete types below are the only actions.
type Action interface {
	action()
}

// SetLoading marks the start of a remote call.
type SetLoading struct{}

// HostelsLoaded replaces the collection with an authoritative list.
type HostelsLoaded struct {
	Hostels   []models.Hostel
	UserCount int
}

// HostelLoaded records a single fetched hostel.
type HostelLoaded struct {
	Hostel models.Hostel
}

// HostelAdded appends a hostel.
type HostelAdded struct {
	Hostel models.Hostel
}

// HostelUpdated replaces the hostel with the same id.
type HostelUpdated struct {
	Hostel models.Hostel
}

// HostelDeleted removes the hostel with ID.
type HostelDeleted struct {
	ID models.ID
}

// Failed records a failed remote call. The collection is kept.
type Failed struct {
	Message string
}

// ClearError drops the current error message.
type ClearError struct{}

func (SetLoading) action()    {}
func (HostelsLoaded) action() {}
func (HostelLoaded) action()  {}
func (HostelAdded) action()   {}
func (HostelUpdated) action() {}
func (HostelDeleted) action() {}
func (Failed) action()        {}
func (ClearError) action()    {}

// Reduce returns the state that results from applying a to s.
// It never modifies s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetLoading:
		s.Status = StatusLoading

	case HostelsLoaded:
		s.Hostels = append([]models.Hostel{}, a.Hostels...)
		s.UserCount = a.UserCount
		s.succeeded()

	case HostelLoaded:
		h := a.Hostel
		s.Hostel = &h
		s.succeeded()

	case HostelAdded:
		hostels := make([]models.Hostel, 0, len(s.Hostels)+1)
		s.Hostels = append(append(hostels, s.Hostels...), a.Hostel)
		s.succeeded()

	case HostelUpdated:
		hostels := make([]models.Hostel, len(s.Hostels))
		for i, h := range s.Hostels {
			if h.ID == a.Hostel.ID {
				h = a.Hostel
			}
			hostels[i] = h
		}
		s.Hostels = hostels
		h := a.Hostel
		s.Hostel = &h
		s.succeeded()

	case HostelDeleted:
		hostels := make([]models.Hostel, 0, len(s.Hostels))
		for _, h := range s.Hostels {
			if h.ID != a.ID {
				hostels = append(hostels, h)
			}
		}
		s.Hostels = hostels
		s.succeeded()

	case Failed:
		s.Status = StatusError
		s.Err = a.Message

	case ClearError:
		s.Err = ""
		if s.Status == StatusError {
			s.Status = StatusIdle
		}
	}
	return s
}

func (s *State) succeeded() {
	s.Status = StatusReady
	s.Err = ""
}
