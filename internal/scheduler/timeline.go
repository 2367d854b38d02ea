package scheduler

import (
	"time"

	"github.com/google/btree"
)

const timelineDegree = 16

// Timeline is the ordered set of committed intervals for a single room.
//
// Intervals are keyed by (Start, ReservationID). Committed intervals never
// overlap, so ordering by start also orders them by end; overlap queries walk
// backwards from the proposed end and stop at the first interval that finishes
// before the proposed start.
//
// Timeline is not safe for concurrent use. Index serialises access per room.
type Timeline struct {
	tree *btree.BTreeG[Interval]
	byID map[string]Interval
}

// NewTimeline constructs an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		tree: btree.NewG[Interval](timelineDegree, intervalLess),
		byID: make(map[string]Interval),
	}
}

// Len returns the number of committed intervals.
func (t *Timeline) Len() int {
	return t.tree.Len()
}

// Contains reports whether the reservation has an interval on this timeline.
func (t *Timeline) Contains(reservationID string) bool {
	_, ok := t.byID[reservationID]
	return ok
}

// Get returns the interval owned by the reservation.
func (t *Timeline) Get(reservationID string) (Interval, bool) {
	iv, ok := t.byID[reservationID]
	return iv, ok
}

// Overlaps reports whether any committed interval other than excludeID
// intersects [start, end).
func (t *Timeline) Overlaps(start, end time.Time, excludeID string) bool {
	_, found := t.FirstConflict(start, end, excludeID)
	return found
}

// FirstConflict returns the latest-starting committed interval that intersects
// [start, end), skipping excludeID.
func (t *Timeline) FirstConflict(start, end time.Time, excludeID string) (Interval, bool) {
	var (
		conflict Interval
		found    bool
	)
	pivot := Interval{Start: end}
	t.tree.DescendLessOrEqual(pivot, func(iv Interval) bool {
		if !iv.Start.Before(end) {
			return true
		}
		if !iv.End.After(start) {
			return false
		}
		if iv.ReservationID == excludeID {
			return true
		}
		conflict = iv
		found = true
		return false
	})
	return conflict, found
}

// Insert adds an interval. A previous interval for the same reservation is replaced.
// Callers must have confirmed that the interval does not overlap.
func (t *Timeline) Insert(iv Interval) {
	if prev, ok := t.byID[iv.ReservationID]; ok {
		t.tree.Delete(prev)
	}
	t.tree.ReplaceOrInsert(iv)
	t.byID[iv.ReservationID] = iv
}

// Remove deletes the reservation's interval. Removing an absent reservation is a no-op.
func (t *Timeline) Remove(reservationID string) bool {
	iv, ok := t.byID[reservationID]
	if !ok {
		return false
	}
	t.tree.Delete(iv)
	delete(t.byID, reservationID)
	return true
}

// Intervals returns all committed intervals ordered by start.
func (t *Timeline) Intervals() []Interval {
	out := make([]Interval, 0, t.tree.Len())
	t.tree.Ascend(func(iv Interval) bool {
		out = append(out, iv)
		return true
	})
	return out
}

// Between returns the committed intervals that intersect [from, to) ordered by start.
func (t *Timeline) Between(from, to time.Time) []Interval {
	var out []Interval
	t.tree.AscendLessThan(Interval{Start: to}, func(iv Interval) bool {
		if iv.Overlaps(from, to) {
			out = append(out, iv)
		}
		return true
	})
	return out
}
