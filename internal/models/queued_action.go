package models

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies the write a QueuedAction will replay.
type ActionKind string

const (
	ActionCreate ActionKind = "ADD_HOSTEL"
	ActionUpdate ActionKind = "UPDATE_HOSTEL"
	ActionDelete ActionKind = "DELETE_HOSTEL"
)

// QueuedAction is a write recorded while offline, awaiting replay.
// It carries no id, timestamp or retry count.
type QueuedAction struct {
	Type    ActionKind      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewCreateAction records the creation of a hostel.
func NewCreateAction(in HostelInput) (QueuedAction, error) {
	return newAction(ActionCreate, in)
}

// NewUpdateAction records an update of the hostel with the given id.
func NewUpdateAction(id ID, in HostelInput) (QueuedAction, error) {
	return newAction(ActionUpdate, HostelUpdate{ID: id, HostelInput: in})
}

// NewDeleteAction records the deletion of the hostel with the given id.
func NewDeleteAction(id ID) (QueuedAction, error) {
	return newAction(ActionDelete, id)
}

func newAction(kind ActionKind, payload interface{}) (QueuedAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return QueuedAction{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return QueuedAction{Type: kind, Payload: raw}, nil
}

// CreatePayload decodes the payload of an ActionCreate.
func (a QueuedAction) CreatePayload() (HostelInput, error) {
	var in HostelInput
	if err := a.decode(ActionCreate, &in); err != nil {
		return HostelInput{}, err
	}
	return in, nil
}

// UpdatePayload decodes the payload of an ActionUpdate.
func (a QueuedAction) UpdatePayload() (HostelUpdate, error) {
	var u HostelUpdate
	if err := a.decode(ActionUpdate, &u); err != nil {
		return HostelUpdate{}, err
	}
	if u.ID.IsZero() {
		return HostelUpdate{}, fmt.Errorf("%s payload has no id", ActionUpdate)
	}
	return u, nil
}

// DeletePayload decodes the payload of an ActionDelete.
func (a QueuedAction) DeletePayload() (ID, error) {
	var id ID
	if err := a.decode(ActionDelete, &id); err != nil {
		return "", err
	}
	if id.IsZero() {
		return "", fmt.Errorf("%s payload has no id", ActionDelete)
	}
	return id, nil
}

func (a QueuedAction) decode(kind ActionKind, v interface{}) error {
	if a.Type != kind {
		return fmt.Errorf("action is %s, not %s", a.Type, kind)
	}
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", kind, err)
	}
	return nil
}
