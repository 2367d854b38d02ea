package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/scheduler"
)

type reservationRepoStub struct {
	mu    sync.Mutex
	items map[string]Reservation

	createErr error
	updateErr error
	deleteErr error
	listErr   error
}

func newReservationRepoStub() *reservationRepoStub {
	return &reservationRepoStub{items: make(map[string]Reservation)}
}

func (r *reservationRepoStub) CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Reservation{}, r.createErr
	}
	if _, exists := r.items[reservation.ID]; exists {
		return Reservation{}, persistence.ErrDuplicate
	}
	r.items[reservation.ID] = reservation
	return reservation, nil
}

func (r *reservationRepoStub) UpdateReservation(ctx context.Context, reservation Reservation) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return Reservation{}, r.updateErr
	}
	if _, exists := r.items[reservation.ID]; !exists {
		return Reservation{}, persistence.ErrNotFound
	}
	r.items[reservation.ID] = reservation
	return reservation, nil
}

func (r *reservationRepoStub) DeleteReservation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, exists := r.items[id]; !exists {
		return persistence.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *reservationRepoStub) GetReservation(ctx context.Context, id string) (ReservationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.items[id]
	if !ok {
		return ReservationView{}, persistence.ErrNotFound
	}
	return ReservationView{Reservation: reservation}, nil
}

func (r *reservationRepoStub) ListReservations(ctx context.Context, filter ReservationRepositoryFilter) ([]ReservationView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]ReservationView, 0, len(r.items))
	for _, reservation := range r.items {
		out = append(out, ReservationView{Reservation: reservation})
	}
	return out, nil
}

type reservationHarness struct {
	index *scheduler.Index
	repo  *reservationRepoStub
	svc   *ReservationService
}

func newReservationHarness(t *testing.T, rooms ...string) *reservationHarness {
	t.Helper()

	index := scheduler.NewIndex()
	for _, id := range rooms {
		if err := index.AddRoom(id, true); err != nil {
			t.Fatalf("add room %s: %v", id, err)
		}
	}
	repo := newReservationRepoStub()

	var seq atomic.Int64
	idGen := func() string { return fmt.Sprintf("res-%d", seq.Add(1)) }
	now := func() time.Time { return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC) }

	return &reservationHarness{
		index: index,
		repo:  repo,
		svc:   NewReservationService(repo, index, idGen, now),
	}
}

func (h *reservationHarness) book(t *testing.T, roomID, responsible string, start, end time.Time) (Reservation, error) {
	t.Helper()
	return h.svc.CreateReservation(context.Background(), CreateReservationParams{
		Principal: Principal{UserID: "user-1"},
		Input: ReservationInput{
			RoomID:      roomID,
			Responsible: responsible,
			Start:       start,
			End:         end,
		},
	})
}

func may20(hour, minute int) time.Time {
	return time.Date(2024, time.May, 20, hour, minute, 0, 0, time.UTC)
}

func TestReservationService_CreateReservation(t *testing.T) {
	t.Run("back to back bookings and overlap rejection", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")

		alice, err := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))
		if err != nil {
			t.Fatalf("expected Alice's booking to succeed, got %v", err)
		}
		bob, err := h.book(t, "room-a", "Bob", may20(10, 0), may20(11, 0))
		if err != nil {
			t.Fatalf("expected adjacent booking to succeed, got %v", err)
		}

		_, err = h.book(t, "room-a", "Carol", may20(9, 30), may20(10, 30))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.RoomID != "room-a" {
			t.Fatalf("expected ConflictError for room-a, got %v", err)
		}
		if cErr.ReservationID != alice.ID && cErr.ReservationID != bob.ID {
			t.Fatalf("unexpected blocking reservation %q", cErr.ReservationID)
		}
		if len(h.repo.items) != 2 {
			t.Fatalf("expected two stored reservations, got %d", len(h.repo.items))
		}
	})

	t.Run("invalid interval leaves the index unchanged", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")

		for _, end := range []time.Time{may20(9, 0), may20(8, 0)} {
			_, err := h.book(t, "room-a", "Alice", may20(9, 0), end)
			if !errors.Is(err, ErrInvalidInterval) {
				t.Fatalf("expected ErrInvalidInterval, got %v", err)
			}
		}
		if overlaps, _ := h.index.Overlaps("room-a", may20(0, 0), may20(23, 0), ""); overlaps {
			t.Fatalf("expected no committed intervals")
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		h := newReservationHarness(t)

		_, err := h.book(t, "room-x", "Alice", may20(9, 0), may20(10, 0))
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("inactive room", func(t *testing.T) {
		h := newReservationHarness(t)
		if err := h.index.AddRoom("room-b", false); err != nil {
			t.Fatalf("add room: %v", err)
		}

		_, err := h.book(t, "room-b", "Alice", may20(9, 0), may20(10, 0))
		if !errors.Is(err, ErrRoomInactive) {
			t.Fatalf("expected ErrRoomInactive, got %v", err)
		}
	})

	t.Run("requires a responsible person", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")

		_, err := h.book(t, "room-a", "   ", may20(9, 0), may20(10, 0))
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["responsible"]; !ok {
			t.Fatalf("expected responsible error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("catering details are dropped when not required", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")

		created, err := h.svc.CreateReservation(context.Background(), CreateReservationParams{
			Input: ReservationInput{
				RoomID:      "room-a",
				Responsible: "Alice",
				Start:       may20(9, 0),
				End:         may20(10, 0),
				Catering:    Catering{Required: false, Quantity: intPtr(4), Description: strPtr("tea")},
			},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.Catering.Quantity != nil || created.Catering.Description != nil {
			t.Fatalf("expected catering details to be cleared, got %+v", created.Catering)
		}
	})

	t.Run("store failure leaves the room free", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		h.repo.createErr = errors.New("disk I/O error")

		_, err := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if overlaps, _ := h.index.Overlaps("room-a", may20(9, 0), may20(10, 0), ""); overlaps {
			t.Fatalf("expected index to remain empty")
		}
	})

	t.Run("normalises times to UTC", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		jst := time.FixedZone("JST", 9*60*60)

		created, err := h.book(t, "room-a", "Alice",
			time.Date(2024, time.May, 20, 18, 0, 0, 0, jst),
			time.Date(2024, time.May, 20, 19, 0, 0, 0, jst),
		)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.Start.Location() != time.UTC || !created.Start.Equal(may20(9, 0)) {
			t.Fatalf("expected UTC start, got %v", created.Start)
		}

		_, err = h.book(t, "room-a", "Bob", may20(9, 30), may20(9, 45))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict across zones, got %v", err)
		}
	})
}

func TestReservationService_ConcurrentCreates(t *testing.T) {
	h := newReservationHarness(t, "room-a")

	const writers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		conflicts atomic.Int64
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.CreateReservation(context.Background(), CreateReservationParams{
				Input: ReservationInput{
					RoomID:      "room-a",
					Responsible: fmt.Sprintf("writer-%d", i),
					Start:       may20(9, 0),
					End:         may20(10, 0),
				},
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != writers-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes.Load(), conflicts.Load())
	}
}

func TestReservationService_UpdateReservation(t *testing.T) {
	t.Run("overlap check excludes the reservation itself", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

		end := may20(9, 45)
		updated, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{End: &end},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !updated.End.Equal(end) || updated.Responsible != "Alice" {
			t.Fatalf("unexpected update result: %+v", updated)
		}
		if overlaps, _ := h.index.Overlaps("room-a", may20(9, 45), may20(10, 0), ""); overlaps {
			t.Fatalf("expected released tail to be free")
		}
	})

	t.Run("moving onto a neighbour conflicts", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))
		bob, _ := h.book(t, "room-a", "Bob", may20(10, 0), may20(11, 0))

		start, end := may20(9, 30), may20(10, 30)
		_, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{Start: &start, End: &end},
		})
		var cErr *ConflictError
		if !errors.As(err, &cErr) || cErr.ReservationID != bob.ID {
			t.Fatalf("expected conflict with Bob, got %v", err)
		}

		stored := h.repo.items[alice.ID]
		if !stored.Start.Equal(may20(9, 0)) || !stored.End.Equal(may20(10, 0)) {
			t.Fatalf("expected stored reservation to be unchanged, got %+v", stored)
		}
	})

	t.Run("moves between rooms", func(t *testing.T) {
		h := newReservationHarness(t, "room-a", "room-b")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

		target := "room-b"
		updated, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{RoomID: &target},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if updated.RoomID != "room-b" {
			t.Fatalf("expected room-b, got %s", updated.RoomID)
		}
		if owner, _ := h.index.Owner(alice.ID); owner != "room-b" {
			t.Fatalf("expected owner room-b, got %s", owner)
		}
		if overlaps, _ := h.index.Overlaps("room-a", may20(9, 0), may20(10, 0), ""); overlaps {
			t.Fatalf("expected room-a to be released")
		}
	})

	t.Run("rejects moves to unknown rooms", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

		target := "room-x"
		_, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{RoomID: &target},
		})
		if !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("invalid interval", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

		end := may20(8, 0)
		_, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{End: &end},
		})
		if !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("expected ErrInvalidInterval, got %v", err)
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")

		_, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{ReservationID: "res-404"})
		if !errors.Is(err, ErrReservationNotFound) {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})

	t.Run("reservations vanish with their room", func(t *testing.T) {
		h := newReservationHarness(t, "room-a")
		alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

		rooms := NewRoomService(&roomRepoStub{}, h.index, nil, nil)
		if err := rooms.DeleteRoom(context.Background(), Principal{}, "room-a"); err != nil {
			t.Fatalf("delete room: %v", err)
		}

		responsible := "Alice B."
		_, err := h.svc.UpdateReservation(context.Background(), UpdateReservationParams{
			ReservationID: alice.ID,
			Patch:         ReservationPatch{Responsible: &responsible},
		})
		if !errors.Is(err, ErrReservationNotFound) {
			t.Fatalf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestReservationService_DeleteReservation(t *testing.T) {
	h := newReservationHarness(t, "room-a")
	alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

	if err := h.svc.DeleteReservation(context.Background(), Principal{}, alice.ID); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := h.svc.DeleteReservation(context.Background(), Principal{}, alice.ID); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound on second delete, got %v", err)
	}
	if _, err := h.book(t, "room-a", "Bob", may20(9, 0), may20(10, 0)); err != nil {
		t.Fatalf("expected freed slot to be bookable, got %v", err)
	}
}

func TestReservationService_GetReservation(t *testing.T) {
	h := newReservationHarness(t, "room-a")
	alice, _ := h.book(t, "room-a", "Alice", may20(9, 0), may20(10, 0))

	view, err := h.svc.GetReservation(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if view.ID != alice.ID || view.Responsible != "Alice" || !view.Start.Equal(alice.Start) || !view.End.Equal(alice.End) {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := h.svc.GetReservation(context.Background(), "res-404"); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestReservationService_ListReservations(t *testing.T) {
	h := newReservationHarness(t, "room-a", "room-b")
	_, _ = h.book(t, "room-a", "Alice Smith", may20(13, 0), may20(14, 0))
	_, _ = h.book(t, "room-a", "Bob", may20(9, 0), may20(10, 0))
	_, _ = h.book(t, "room-b", "alice jones", may20(9, 0), may20(10, 0))

	t.Run("orders by start", func(t *testing.T) {
		views, err := h.svc.ListReservations(context.Background(), ListReservationsParams{})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(views) != 3 {
			t.Fatalf("expected three reservations, got %d", len(views))
		}
		for i := 1; i < len(views); i++ {
			if views[i].Start.Before(views[i-1].Start) {
				t.Fatalf("expected ascending start order, got %+v", views)
			}
		}
	})

	t.Run("responsible is a case sensitive substring", func(t *testing.T) {
		views, err := h.svc.ListReservations(context.Background(), ListReservationsParams{Responsible: "Alice"})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(views) != 1 || views[0].Responsible != "Alice Smith" {
			t.Fatalf("unexpected result: %+v", views)
		}
	})

	t.Run("room and window filters", func(t *testing.T) {
		from, to := may20(9, 30), may20(12, 0)
		views, err := h.svc.ListReservations(context.Background(), ListReservationsParams{
			RoomID: "room-a",
			From:   &from,
			To:     &to,
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(views) != 1 || views[0].Responsible != "Bob" {
			t.Fatalf("unexpected result: %+v", views)
		}
	})

	t.Run("rejects an empty window", func(t *testing.T) {
		from := may20(12, 0)
		_, err := h.svc.ListReservations(context.Background(), ListReservationsParams{From: &from, To: &from})
		if !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("expected ErrInvalidInterval, got %v", err)
		}
	})
}
