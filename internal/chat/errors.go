package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned by every session call after Close.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotJoined is returned when a session publishes before Open succeeded.
	ErrNotJoined = errors.New("connection has not joined a room")
	// ErrAlreadyOpen is returned by a second Open on a live session.
	ErrAlreadyOpen = errors.New("connection already opened")
)

// AlreadyJoinedError means the member is bound to a different room.
type AlreadyJoinedError struct {
	ConnID    string
	Current   string
	Requested string
}

func (e *AlreadyJoinedError) Error() string {
	return fmt.Sprintf("connection %s already joined room %q, cannot join %q", e.ConnID, e.Current, e.Requested)
}

// PersistenceError wraps a failed durable save. Nothing was cached or delivered.
type PersistenceError struct {
	RoomID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist message for room %q: %v", e.RoomID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError reports a single member's transport failure during fan-out.
type DeliveryError struct {
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
