package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRoomNotFound is returned when a room is not registered in the index.
	ErrRoomNotFound = errors.New("scheduler: room not found")
	// ErrRoomExists is returned when a room identifier is registered twice.
	ErrRoomExists = errors.New("scheduler: room already registered")
)

// RoomNotFoundError carries the identifier of the room that could not be resolved.
type RoomNotFoundError struct {
	RoomID string
}

func (e *RoomNotFoundError) Error() string {
	return fmt.Sprintf("scheduler: room %q not found", e.RoomID)
}

// Is reports whether the target is ErrRoomNotFound.
func (e *RoomNotFoundError) Is(target error) bool {
	return target == ErrRoomNotFound
}

// Interval is a committed half-open [Start, End) booking owned by a reservation.
type Interval struct {
	Start         time.Time
	End           time.Time
	ReservationID string
}

// Overlaps reports whether the interval intersects [start, end).
// Touching endpoints are not an overlap.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

// Conflict describes the committed interval that blocks a proposed booking.
type Conflict struct {
	RoomID string
	With   Interval
}

// DetectConflicts returns every interval in existing that overlaps the candidate,
// ignoring the candidate's own reservation identifier.
func DetectConflicts(roomID string, existing []Interval, candidate Interval) []Conflict {
	var conflicts []Conflict
	for _, iv := range existing {
		if iv.ReservationID != "" && iv.ReservationID == candidate.ReservationID {
			continue
		}
		if iv.Overlaps(candidate.Start, candidate.End) {
			conflicts = append(conflicts, Conflict{RoomID: roomID, With: iv})
		}
	}
	return conflicts
}

func intervalLess(a, b Interval) bool {
	if a.Start.Equal(b.Start) {
		return a.ReservationID < b.ReservationID
	}
	return a.Start.Before(b.Start)
}
