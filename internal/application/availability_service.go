package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-scheduler/internal/scheduler"
)

// AvailabilityService answers read-only interval queries against the index.
// Queries take the room's shared lock, so they observe each committed write
// either entirely or not at all.
type AvailabilityService struct {
	index  *scheduler.Index
	logger *slog.Logger
}

// NewAvailabilityService constructs an availability service over the index.
func NewAvailabilityService(index *scheduler.Index, logger *slog.Logger) *AvailabilityService {
	if index == nil {
		index = scheduler.NewIndex()
	}
	return &AvailabilityService{index: index, logger: defaultLogger(logger)}
}

// IsAvailable reports whether [start, end) intersects no committed reservation
// in the room. It does not consult the room's active flag.
func (s *AvailabilityService) IsAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("AvailabilityService is nil")
	}
	if !end.After(start) {
		return false, ErrInvalidInterval
	}

	roomID = strings.TrimSpace(roomID)
	overlaps, err := s.index.Overlaps(roomID, start.UTC(), end.UTC(), "")
	if err != nil {
		err = mapIndexError(err)
		serviceLogger(ctx, s.logger, "AvailabilityService", "IsAvailable", "room_id", roomID).
			WarnContext(ctx, "availability query failed", "error", err, "error_kind", ErrorKind(err))
		return false, err
	}
	return !overlaps, nil
}

// BusyIntervals lists the committed intervals intersecting [from, to) ordered by start.
func (s *AvailabilityService) BusyIntervals(ctx context.Context, roomID string, from, to time.Time) ([]BusyInterval, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	if !to.After(from) {
		return nil, ErrInvalidInterval
	}

	roomID = strings.TrimSpace(roomID)
	intervals, err := s.index.Busy(roomID, from.UTC(), to.UTC())
	if err != nil {
		err = mapIndexError(err)
		serviceLogger(ctx, s.logger, "AvailabilityService", "BusyIntervals", "room_id", roomID).
			WarnContext(ctx, "busy interval query failed", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	busy := make([]BusyInterval, 0, len(intervals))
	for _, iv := range intervals {
		busy = append(busy, BusyInterval{ReservationID: iv.ReservationID, Start: iv.Start, End: iv.End})
	}
	return busy, nil
}
