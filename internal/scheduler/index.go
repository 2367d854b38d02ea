package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Index is an arena of rooms, each owning an independently lockable timeline.
//
// The arena lock guards only the room table; reads and writes on a room's
// intervals take that room's lock, so operations on different rooms never
// block one another.
type Index struct {
	mu    sync.RWMutex
	rooms map[string]*slot

	ownerMu sync.RWMutex
	owners  map[string]string
}

type slot struct {
	mu       sync.RWMutex
	id       string
	active   bool
	dropped  bool
	timeline *Timeline
}

// NewIndex constructs an empty index.
func NewIndex() *Index {
	return &Index{
		rooms:  make(map[string]*slot),
		owners: make(map[string]string),
	}
}

func (idx *Index) lookup(roomID string) (*slot, error) {
	idx.mu.RLock()
	s, ok := idx.rooms[roomID]
	idx.mu.RUnlock()
	if !ok {
		return nil, &RoomNotFoundError{RoomID: roomID}
	}
	return s, nil
}

// AddRoom registers a room with an empty timeline.
func (idx *Index) AddRoom(roomID string, active bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.rooms[roomID]; ok {
		return ErrRoomExists
	}
	idx.rooms[roomID] = &slot{id: roomID, active: active, timeline: NewTimeline()}
	return nil
}

// Exists reports whether the room is registered.
func (idx *Index) Exists(roomID string) bool {
	s, err := idx.lookup(roomID)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.dropped
}

// IsActive reports the room's active flag.
func (idx *Index) IsActive(roomID string) (bool, error) {
	s, err := idx.lookup(roomID)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dropped {
		return false, &RoomNotFoundError{RoomID: roomID}
	}
	return s.active, nil
}

// Overlaps reports whether any committed interval for the room, other than
// excludeID, intersects [start, end).
func (idx *Index) Overlaps(roomID string, start, end time.Time, excludeID string) (bool, error) {
	s, err := idx.lookup(roomID)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dropped {
		return false, &RoomNotFoundError{RoomID: roomID}
	}
	return s.timeline.Overlaps(start, end, excludeID), nil
}

// Busy returns the room's committed intervals intersecting [from, to).
func (idx *Index) Busy(roomID string, from, to time.Time) ([]Interval, error) {
	s, err := idx.lookup(roomID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dropped {
		return nil, &RoomNotFoundError{RoomID: roomID}
	}
	return s.timeline.Between(from, to), nil
}

// Owner returns the room that currently holds the reservation's interval.
func (idx *Index) Owner(reservationID string) (string, bool) {
	idx.ownerMu.RLock()
	defer idx.ownerMu.RUnlock()
	roomID, ok := idx.owners[reservationID]
	return roomID, ok
}

// Rooms returns the registered room identifiers in ascending order.
func (idx *Index) Rooms() []string {
	idx.mu.RLock()
	ids := make([]string, 0, len(idx.rooms))
	for id := range idx.rooms {
		ids = append(ids, id)
	}
	idx.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Mutate runs fn while holding the room's exclusive lock.
func (idx *Index) Mutate(roomID string, fn func(tx *RoomTx) error) error {
	s, err := idx.lookup(roomID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return &RoomNotFoundError{RoomID: roomID}
	}
	tx := &RoomTx{idx: idx, s: s}
	return fn(tx)
}

// MutatePair runs fn while holding the exclusive locks of both rooms. Locks are
// taken in identifier order. When both identifiers are equal, fn receives the
// same transaction twice.
func (idx *Index) MutatePair(firstID, secondID string, fn func(first, second *RoomTx) error) error {
	if firstID == secondID {
		return idx.Mutate(firstID, func(tx *RoomTx) error {
			return fn(tx, tx)
		})
	}

	first, err := idx.lookup(firstID)
	if err != nil {
		return err
	}
	second, err := idx.lookup(secondID)
	if err != nil {
		return err
	}

	lo, hi := first, second
	if hi.id < lo.id {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	if first.dropped {
		return &RoomNotFoundError{RoomID: firstID}
	}
	if second.dropped {
		return &RoomNotFoundError{RoomID: secondID}
	}
	return fn(&RoomTx{idx: idx, s: first}, &RoomTx{idx: idx, s: second})
}

// RoomTx exposes a single room's state to a caller holding its exclusive lock.
// A RoomTx must not be retained after the Mutate callback returns.
type RoomTx struct {
	idx *Index
	s   *slot
}

// RoomID returns the room identifier.
func (tx *RoomTx) RoomID() string {
	return tx.s.id
}

// Active reports the room's active flag.
func (tx *RoomTx) Active() bool {
	return tx.s.active
}

// SetActive updates the room's active flag.
func (tx *RoomTx) SetActive(active bool) {
	tx.s.active = active
}

// Overlaps reports whether any committed interval other than excludeID intersects [start, end).
func (tx *RoomTx) Overlaps(start, end time.Time, excludeID string) bool {
	return tx.s.timeline.Overlaps(start, end, excludeID)
}

// FirstConflict returns a committed interval blocking [start, end), skipping excludeID.
func (tx *RoomTx) FirstConflict(start, end time.Time, excludeID string) (Interval, bool) {
	return tx.s.timeline.FirstConflict(start, end, excludeID)
}

// Contains reports whether the reservation's interval belongs to this room.
func (tx *RoomTx) Contains(reservationID string) bool {
	return tx.s.timeline.Contains(reservationID)
}

// Insert commits an interval to the room.
func (tx *RoomTx) Insert(iv Interval) {
	tx.s.timeline.Insert(iv)
	tx.idx.ownerMu.Lock()
	tx.idx.owners[iv.ReservationID] = tx.s.id
	tx.idx.ownerMu.Unlock()
}

// Remove deletes the reservation's interval; absent reservations are ignored.
func (tx *RoomTx) Remove(reservationID string) {
	if !tx.s.timeline.Remove(reservationID) {
		return
	}
	tx.idx.ownerMu.Lock()
	if tx.idx.owners[reservationID] == tx.s.id {
		delete(tx.idx.owners, reservationID)
	}
	tx.idx.ownerMu.Unlock()
}

// Intervals returns the room's committed intervals ordered by start.
func (tx *RoomTx) Intervals() []Interval {
	return tx.s.timeline.Intervals()
}

// Drop removes the room and every interval it owns. Callers waiting on the
// room's lock observe ErrRoomNotFound once the current transaction completes.
// It returns the identifiers of the removed reservations.
func (tx *RoomTx) Drop() []string {
	intervals := tx.s.timeline.Intervals()
	removed := make([]string, 0, len(intervals))

	tx.idx.ownerMu.Lock()
	for _, iv := range intervals {
		if tx.idx.owners[iv.ReservationID] == tx.s.id {
			delete(tx.idx.owners, iv.ReservationID)
		}
		removed = append(removed, iv.ReservationID)
	}
	tx.idx.ownerMu.Unlock()

	tx.s.timeline = NewTimeline()
	tx.s.dropped = true

	tx.idx.mu.Lock()
	if current, ok := tx.idx.rooms[tx.s.id]; ok && current == tx.s {
		delete(tx.idx.rooms, tx.s.id)
	}
	tx.idx.mu.Unlock()

	return removed
}
