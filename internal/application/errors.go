package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller identity cannot be established.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")

	// ErrInvalidInterval is returned when a reservation ends at or before its start.
	ErrInvalidInterval = errors.New("application: end must be after start")
	// ErrRoomNotFound is returned when the referenced room does not exist.
	ErrRoomNotFound = fmt.Errorf("%w: room", ErrNotFound)
	// ErrRoomInactive is returned when a reservation targets a deactivated room.
	ErrRoomInactive = errors.New("application: room is inactive")
	// ErrReservationNotFound is returned when the referenced reservation does not exist.
	ErrReservationNotFound = fmt.Errorf("%w: reservation", ErrNotFound)
	// ErrConflict is returned when a proposed interval overlaps a committed reservation.
	ErrConflict = errors.New("application: reservation conflict")
	// ErrUnavailable is returned when the backing store cannot complete an operation.
	ErrUnavailable = errors.New("application: storage unavailable")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictError reports the committed reservation that blocks a proposed interval.
type ConflictError struct {
	RoomID        string
	ReservationID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("application: room %s is already reserved by %s", e.RoomID, e.ReservationID)
}

// Is reports whether the target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// UnavailableError wraps an infrastructure failure raised by the backing store.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("application: %s: storage unavailable: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether the target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *UnavailableError
	if errors.As(err, &existing) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}
