// Package storetest holds the behavioural checks every persistence.Store
// backend must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/room-scheduler/internal/persistence"
)

// Opener returns a fresh, empty store. The store is closed by Run.
type Opener func(t *testing.T) persistence.Store

// ReferenceTime is the base instant used by the checks.
var ReferenceTime = time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return ReferenceTime.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	fresh := func(t *testing.T) persistence.Store {
		t.Helper()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("users", func(t *testing.T) { testUsers(t, fresh(t)) })
	t.Run("rooms", func(t *testing.T) { testRooms(t, fresh(t)) })
	t.Run("reservations", func(t *testing.T) { testReservations(t, fresh(t)) })
	t.Run("reservation filters", func(t *testing.T) { testReservationFilters(t, fresh(t)) })
	t.Run("room delete cascades", func(t *testing.T) { testCascade(t, fresh(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, fresh(t)) })
}

func seedRoom(t *testing.T, store persistence.Store, id, name string) persistence.Room {
	t.Helper()
	room := persistence.Room{
		ID:        id,
		Name:      name,
		Location:  "10F",
		Active:    true,
		CreatedAt: ReferenceTime,
		UpdatedAt: ReferenceTime,
	}
	if err := store.Rooms().CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("CreateRoom(%s) failed: %v", id, err)
	}
	return room
}

func seedReservation(t *testing.T, store persistence.Store, id, roomID, responsible string, start, end time.Time) persistence.Reservation {
	t.Helper()
	reservation := persistence.Reservation{
		ID:          id,
		RoomID:      roomID,
		Responsible: responsible,
		Start:       start,
		End:         end,
		CreatedAt:   ReferenceTime,
		UpdatedAt:   ReferenceTime,
	}
	if err := store.Reservations().CreateReservation(context.Background(), reservation); err != nil {
		t.Fatalf("CreateReservation(%s) failed: %v", id, err)
	}
	return reservation
}

func testUsers(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	users := store.Users()

	user := persistence.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		CreatedAt:    ReferenceTime,
		UpdatedAt:    ReferenceTime,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	fetched, err := users.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Email != user.Email || fetched.PasswordHash != "hash" || !fetched.CreatedAt.Equal(ReferenceTime) {
		t.Fatalf("unexpected user: %#v", fetched)
	}

	byEmail, err := users.GetUserByEmail(ctx, "ALICE@EXAMPLE.COM")
	if err != nil || byEmail.ID != "user-1" {
		t.Fatalf("expected case-insensitive lookup, got %#v %v", byEmail, err)
	}

	dup := user
	dup.ID = "user-2"
	dup.Email = "Alice@Example.com"
	if err := users.CreateUser(ctx, dup); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if _, err := users.GetUser(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testRooms(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	rooms := store.Rooms()

	room := persistence.Room{
		ID:          "room-1",
		Name:        "Sakura",
		Location:    "10F",
		Capacity:    intPtr(8),
		Description: strPtr("projector"),
		Active:      true,
		CreatedAt:   ReferenceTime,
		UpdatedAt:   ReferenceTime,
	}
	if err := rooms.CreateRoom(ctx, room); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if err := rooms.CreateRoom(ctx, room); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	fetched, err := rooms.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if fetched.Capacity == nil || *fetched.Capacity != 8 || fetched.Description == nil || *fetched.Description != "projector" || !fetched.Active {
		t.Fatalf("unexpected room: %#v", fetched)
	}

	room.Capacity = nil
	room.Active = false
	room.UpdatedAt = ReferenceTime.Add(time.Hour)
	if err := rooms.UpdateRoom(ctx, room); err != nil {
		t.Fatalf("UpdateRoom failed: %v", err)
	}
	fetched, err = rooms.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if fetched.Capacity != nil || fetched.Active || !fetched.UpdatedAt.Equal(room.UpdatedAt) {
		t.Fatalf("unexpected updated room: %#v", fetched)
	}

	room.Capacity = intPtr(0)
	if err := rooms.UpdateRoom(ctx, room); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	missing := room
	missing.ID = "room-x"
	missing.Capacity = nil
	if err := rooms.UpdateRoom(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seedRoom(t, store, "room-0", "Kaede")
	list, err := rooms.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "room-0" || list[1].ID != "room-1" {
		t.Fatalf("unexpected room list: %#v", list)
	}

	if err := rooms.DeleteRoom(ctx, "room-0"); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	if err := rooms.DeleteRoom(ctx, "room-0"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testReservations(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	reservations := store.Reservations()
	seedRoom(t, store, "room-1", "Sakura")
	seedRoom(t, store, "room-2", "Kaede")

	reservation := persistence.Reservation{
		ID:                  "res-1",
		RoomID:              "room-1",
		Responsible:         "Alice",
		Start:               at(9, 0),
		End:                 at(10, 0),
		Description:         strPtr("standup"),
		CateringRequired:    true,
		CateringQuantity:    intPtr(4),
		CateringDescription: strPtr("coffee"),
		CreatedAt:           ReferenceTime,
		UpdatedAt:           ReferenceTime,
	}
	if err := reservations.CreateReservation(ctx, reservation); err != nil {
		t.Fatalf("CreateReservation failed: %v", err)
	}

	fetched, err := reservations.GetReservation(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetReservation failed: %v", err)
	}
	if !fetched.Start.Equal(at(9, 0)) || !fetched.End.Equal(at(10, 0)) || fetched.Responsible != "Alice" {
		t.Fatalf("round trip mismatch: %#v", fetched)
	}
	if fetched.RoomName != "Sakura" || fetched.RoomLocation != "10F" {
		t.Fatalf("expected joined room fields, got %#v", fetched)
	}
	if !fetched.CateringRequired || fetched.CateringQuantity == nil || *fetched.CateringQuantity != 4 {
		t.Fatalf("unexpected catering: %#v", fetched)
	}

	orphan := reservation
	orphan.ID = "res-orphan"
	orphan.RoomID = "room-x"
	if err := reservations.CreateReservation(ctx, orphan); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	reservation.RoomID = "room-2"
	reservation.Start = at(11, 0)
	reservation.End = at(12, 30)
	reservation.CateringRequired = false
	reservation.CateringQuantity = nil
	reservation.CateringDescription = nil
	reservation.UpdatedAt = ReferenceTime.Add(time.Hour)
	if err := reservations.UpdateReservation(ctx, reservation); err != nil {
		t.Fatalf("UpdateReservation failed: %v", err)
	}
	fetched, err = reservations.GetReservation(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetReservation failed: %v", err)
	}
	if fetched.RoomID != "room-2" || fetched.RoomName != "Kaede" || !fetched.End.Equal(at(12, 30)) || fetched.CateringQuantity != nil {
		t.Fatalf("unexpected updated reservation: %#v", fetched)
	}

	if err := reservations.DeleteReservation(ctx, "res-1"); err != nil {
		t.Fatalf("DeleteReservation failed: %v", err)
	}
	if err := reservations.DeleteReservation(ctx, "res-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := reservations.GetReservation(ctx, "res-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := reservations.UpdateReservation(ctx, reservation); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func testReservationFilters(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	seedRoom(t, store, "room-1", "Sakura")
	seedRoom(t, store, "room-2", "Kaede")
	seedReservation(t, store, "res-1", "room-1", "Alice Smith", at(13, 0), at(14, 0))
	seedReservation(t, store, "res-2", "room-1", "Bob", at(9, 0), at(10, 0))
	seedReservation(t, store, "res-3", "room-2", "alice jones", at(9, 0), at(10, 0))

	ids := func(list []persistence.Reservation) []string {
		out := make([]string, len(list))
		for i, r := range list {
			out[i] = r.ID
		}
		return out
	}

	cases := []struct {
		name   string
		filter persistence.ReservationFilter
		want   []string
	}{
		{name: "all ordered by start", filter: persistence.ReservationFilter{}, want: []string{"res-2", "res-3", "res-1"}},
		{name: "room", filter: persistence.ReservationFilter{RoomID: "room-1"}, want: []string{"res-2", "res-1"}},
		{name: "responsible is case sensitive", filter: persistence.ReservationFilter{Responsible: "Alice"}, want: []string{"res-1"}},
		{name: "window", filter: persistence.ReservationFilter{From: timePtr(at(10, 0)), To: timePtr(at(13, 30))}, want: []string{"res-1"}},
		{name: "window touching end", filter: persistence.ReservationFilter{To: timePtr(at(9, 0))}, want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.Reservations().ListReservations(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListReservations failed: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tc.want) {
				t.Fatalf("got %v, want %v", gotIDs, tc.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", gotIDs, tc.want)
				}
			}
		})
	}
}

func testCascade(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	seedRoom(t, store, "room-1", "Sakura")
	seedRoom(t, store, "room-2", "Kaede")
	seedReservation(t, store, "res-1", "room-1", "Alice", at(9, 0), at(10, 0))
	seedReservation(t, store, "res-2", "room-1", "Bob", at(10, 0), at(11, 0))
	seedReservation(t, store, "res-3", "room-2", "Carol", at(9, 0), at(10, 0))

	if err := store.Rooms().DeleteRoom(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}

	for _, id := range []string{"res-1", "res-2"} {
		if _, err := store.Reservations().GetReservation(ctx, id); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected %s to be cascaded, got %v", id, err)
		}
	}
	if _, err := store.Reservations().GetReservation(ctx, "res-3"); err != nil {
		t.Fatalf("expected other rooms to be untouched, got %v", err)
	}
}

func testSessions(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	if err := store.Users().CreateUser(ctx, persistence.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		PasswordHash: "hash",
		CreatedAt:    ReferenceTime,
		UpdatedAt:    ReferenceTime,
	}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	sessions := store.Sessions()

	session := persistence.Session{
		ID:          "s-1",
		UserID:      "user-1",
		Token:       "token-1",
		Fingerprint: "device",
		ExpiresAt:   ReferenceTime.Add(time.Hour),
		CreatedAt:   ReferenceTime,
		UpdatedAt:   ReferenceTime,
	}
	if _, err := sessions.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fetched, err := sessions.GetSession(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fetched.UserID != "user-1" || !fetched.ExpiresAt.Equal(session.ExpiresAt) || fetched.RevokedAt != nil {
		t.Fatalf("unexpected session: %#v", fetched)
	}

	session.Token = "token-2"
	session.ExpiresAt = ReferenceTime.Add(2 * time.Hour)
	if _, err := sessions.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if _, err := sessions.GetSession(ctx, "token-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rotated token to be gone, got %v", err)
	}

	revoked, err := sessions.RevokeSession(ctx, "token-2", ReferenceTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(ReferenceTime.Add(time.Minute)) {
		t.Fatalf("unexpected revoked session: %#v", revoked)
	}
	if _, err := sessions.RevokeSession(ctx, "missing", ReferenceTime); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := sessions.DeleteExpiredSessions(ctx, ReferenceTime.Add(3*time.Hour)); err != nil {
		t.Fatalf("DeleteExpiredSessions failed: %v", err)
	}
	if _, err := sessions.GetSession(ctx, "token-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected expired session to be pruned, got %v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
