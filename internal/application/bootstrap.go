package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/room-scheduler/internal/scheduler"
)

// LoadIndex rebuilds the scheduling index from the stores. It must run before
// the services accept traffic. Stored reservations that overlap, or that
// reference an unknown room, abort the load.
func LoadIndex(ctx context.Context, index *scheduler.Index, rooms RoomRepository, reservations ReservationRepository, logger *slog.Logger) error {
	if index == nil {
		return fmt.Errorf("scheduling index not configured")
	}
	if rooms == nil || reservations == nil {
		return fmt.Errorf("repositories not configured")
	}
	logger = serviceLogger(ctx, defaultLogger(logger), "IndexLoader", "LoadIndex")

	storedRooms, err := rooms.ListRooms(ctx)
	if err != nil {
		return unavailable("list rooms", err)
	}
	for _, room := range storedRooms {
		if err := index.AddRoom(room.ID, room.Active); err != nil {
			return fmt.Errorf("register room %s: %w", room.ID, err)
		}
	}

	views, err := reservations.ListReservations(ctx, ReservationRepositoryFilter{})
	if err != nil {
		return unavailable("list reservations", err)
	}
	for _, view := range views {
		iv := scheduler.Interval{Start: view.Start.UTC(), End: view.End.UTC(), ReservationID: view.ID}
		err := index.Mutate(view.RoomID, func(tx *scheduler.RoomTx) error {
			if _, found := tx.FirstConflict(iv.Start, iv.End, iv.ReservationID); found {
				conflicts := scheduler.DetectConflicts(view.RoomID, tx.Intervals(), iv)
				blocking := make([]string, 0, len(conflicts))
				for _, c := range conflicts {
					blocking = append(blocking, c.With.ReservationID)
				}
				return fmt.Errorf("stored reservation %s overlaps %s in room %s", iv.ReservationID, strings.Join(blocking, ", "), view.RoomID)
			}
			tx.Insert(iv)
			return nil
		})
		if err != nil {
			return fmt.Errorf("load reservation %s: %w", view.ID, err)
		}
	}

	logger.InfoContext(ctx, "scheduling index loaded",
		"room_count", len(index.Rooms()),
		"reservation_count", len(views),
	)
	return nil
}
