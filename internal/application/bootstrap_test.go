package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/room-scheduler/internal/scheduler"
)

func TestLoadIndex(t *testing.T) {
	t.Run("restores rooms and intervals", func(t *testing.T) {
		rooms := &roomRepoStub{list: []Room{
			{ID: "room-a", Name: "A", Active: true},
			{ID: "room-b", Name: "B", Active: false},
		}}
		reservations := newReservationRepoStub()
		reservations.items["res-1"] = Reservation{ID: "res-1", RoomID: "room-a", Responsible: "Alice", Start: may20(9, 0), End: may20(10, 0)}
		reservations.items["res-2"] = Reservation{ID: "res-2", RoomID: "room-b", Responsible: "Bob", Start: may20(9, 0), End: may20(10, 0)}

		index := scheduler.NewIndex()
		if err := LoadIndex(context.Background(), index, rooms, reservations, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if active, err := index.IsActive("room-b"); err != nil || active {
			t.Fatalf("expected inactive room-b, got %v %v", active, err)
		}
		if owner, _ := index.Owner("res-1"); owner != "room-a" {
			t.Fatalf("expected res-1 in room-a, got %q", owner)
		}
		if overlaps, _ := index.Overlaps("room-a", may20(9, 30), may20(9, 45), ""); !overlaps {
			t.Fatalf("expected restored interval to block room-a")
		}
	})

	t.Run("rejects overlapping stored reservations", func(t *testing.T) {
		rooms := &roomRepoStub{list: []Room{{ID: "room-a", Active: true}}}
		reservations := newReservationRepoStub()
		reservations.items["res-1"] = Reservation{ID: "res-1", RoomID: "room-a", Start: may20(9, 0), End: may20(10, 0)}
		reservations.items["res-2"] = Reservation{ID: "res-2", RoomID: "room-a", Start: may20(9, 30), End: may20(10, 30)}

		err := LoadIndex(context.Background(), scheduler.NewIndex(), rooms, reservations, nil)
		if err == nil || !strings.Contains(err.Error(), "overlap") {
			t.Fatalf("expected overlap error, got %v", err)
		}
	})

	t.Run("rejects orphaned reservations", func(t *testing.T) {
		reservations := newReservationRepoStub()
		reservations.items["res-1"] = Reservation{ID: "res-1", RoomID: "room-x", Start: may20(9, 0), End: may20(10, 0)}

		err := LoadIndex(context.Background(), scheduler.NewIndex(), &roomRepoStub{}, reservations, nil)
		if !errors.Is(err, scheduler.ErrRoomNotFound) {
			t.Fatalf("expected room not found, got %v", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		err := LoadIndex(context.Background(), scheduler.NewIndex(), &roomRepoStub{listErr: errors.New("boom")}, newReservationRepoStub(), nil)
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}
