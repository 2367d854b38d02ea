package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/room-scheduler/internal/application"
	"github.com/example/room-scheduler/internal/config"
	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/persistence/memory"
	"github.com/example/room-scheduler/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *apiClient) call(method, target string, body any) (int, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal request: %v", err)
		}
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			c.t.Fatalf("decode %s %s response %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code, decoded
}

func (c *apiClient) login(email, password string) {
	c.t.Helper()

	status, body := c.call(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		c.t.Fatalf("login failed with %d: %v", status, body)
	}
	c.token, _ = body["access_token"].(string)
	if c.token == "" {
		c.t.Fatalf("login returned no token: %v", body)
	}
}

func TestNewHandler_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)

	handler, err := newHandler(ctx, harness.Store, time.Hour, discardLogger())
	if err != nil {
		t.Fatalf("newHandler failed: %v", err)
	}
	client := &apiClient{t: t, handler: handler}

	if status, _ := client.call(http.MethodGet, "/api/rooms", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected unauthenticated listing to fail, got %d", status)
	}

	status, body := client.call(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "wonderland",
	})
	if status != http.StatusCreated {
		t.Fatalf("register failed with %d: %v", status, body)
	}
	client.login("ALICE@example.com", "wonderland")

	status, room := client.call(http.MethodPost, "/api/rooms", map[string]any{"name": "Orion", "location": "3F", "capacity": 8})
	if status != http.StatusCreated {
		t.Fatalf("room create failed with %d: %v", status, room)
	}
	roomID, _ := room["id"].(string)

	status, first := client.call(http.MethodPost, "/api/reservations", map[string]any{
		"room_id": roomID, "responsible": "Alice",
		"start": "2024-05-01T10:00:00+09:00", "end": "2024-05-01T11:00:00+09:00",
	})
	if status != http.StatusCreated {
		t.Fatalf("reservation create failed with %d: %v", status, first)
	}
	if first["start"] != "2024-05-01T01:00:00Z" {
		t.Fatalf("expected UTC output, got %v", first["start"])
	}

	status, conflict := client.call(http.MethodPost, "/api/reservations", map[string]any{
		"room_id": roomID, "responsible": "Bob",
		"start": "2024-05-01T01:30:00Z", "end": "2024-05-01T02:30:00Z",
	})
	if status != http.StatusConflict || conflict["error_code"] != "RESERVATION_CONFLICT" {
		t.Fatalf("expected conflict, got %d: %v", status, conflict)
	}

	status, touching := client.call(http.MethodPost, "/api/reservations", map[string]any{
		"room_id": roomID, "responsible": "Bob",
		"start": "2024-05-01T02:00:00Z", "end": "2024-05-01T03:00:00Z",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected touching reservation to succeed, got %d: %v", status, touching)
	}

	query := url.Values{"start": {"2024-05-01T01:15:00Z"}, "end": {"2024-05-01T01:45:00Z"}}
	if status, avail := client.call(http.MethodGet, "/api/rooms/"+roomID+"/availability?"+query.Encode(), nil); status != http.StatusOK || avail["available"] != false {
		t.Fatalf("expected busy slot, got %d: %v", status, avail)
	}

	// A fresh handler over the same store rebuilds the index from storage.
	restarted, err := newHandler(ctx, harness.Store, time.Hour, discardLogger())
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	client.handler = restarted
	if status, _ := client.call(http.MethodPost, "/api/reservations", map[string]any{
		"room_id": roomID, "responsible": "Carol",
		"start": "2024-05-01T02:30:00Z", "end": "2024-05-01T02:45:00Z",
	}); status != http.StatusConflict {
		t.Fatalf("expected warm index to reject overlap, got %d", status)
	}

	if status, _ := client.call(http.MethodDelete, "/api/rooms/"+roomID, nil); status != http.StatusNoContent {
		t.Fatalf("room delete failed with %d", status)
	}
	firstID, _ := first["id"].(string)
	if status, _ := client.call(http.MethodGet, "/api/reservations/"+firstID, nil); status != http.StatusNotFound {
		t.Fatalf("expected cascade to remove reservation, got %d", status)
	}

	if status, _ := client.call(http.MethodPost, "/api/auth/logout", nil); status != http.StatusNoContent {
		t.Fatalf("logout failed with %d", status)
	}
	if status, _ := client.call(http.MethodGet, "/api/auth/me", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", status)
	}
}

func TestServiceStack_OverMemoryAdapters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	room := testfixtures.NewRoomFixture(testfixtures.WithRoomName("Lyra"))
	if err := store.CreateRoom(ctx, room.Persistence()); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	seeded := testfixtures.NewReservationFixture(room.ID,
		testfixtures.WithReservationInterval(testfixtures.At(9, 0), testfixtures.At(10, 0)))
	if err := store.CreateReservation(ctx, seeded.Persistence()); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	factory := testfixtures.NewServiceFactory(testfixtures.WithLogger(discardLogger()))
	stack, err := factory.NewStack(ctx, testfixtures.StackDeps{
		Rooms:        newRoomRepositoryAdapter(store.Rooms()),
		Reservations: newReservationRepositoryAdapter(store.Reservations()),
		Users:        newUserRepositoryAdapter(store.Users()),
		Credentials:  newCredentialStoreAdapter(store.Users()),
		Sessions:     newSessionRepositoryAdapter(store.Sessions()),
	})
	if err != nil {
		t.Fatalf("NewStack failed: %v", err)
	}

	t.Run("seeded reservations block overlapping bookings", func(t *testing.T) {
		bob := testfixtures.NewReservationFixture(room.ID,
			testfixtures.WithReservationResponsible("Bob"),
			testfixtures.WithReservationInterval(testfixtures.At(9, 30), testfixtures.At(10, 30)))
		_, err := stack.Reservations.CreateReservation(ctx, application.CreateReservationParams{Input: bob.Input()})
		var conflict *application.ConflictError
		if !errors.As(err, &conflict) || conflict.ReservationID != seeded.ID {
			t.Fatalf("expected conflict with %s, got %v", seeded.ID, err)
		}
	})

	t.Run("reads are denormalised with the room", func(t *testing.T) {
		view, err := stack.Reservations.GetReservation(ctx, seeded.ID)
		if err != nil {
			t.Fatalf("GetReservation failed: %v", err)
		}
		if view.RoomName != "Lyra" || view.RoomLocation != room.Location {
			t.Fatalf("unexpected view %+v", view)
		}
	})

	t.Run("register then authenticate", func(t *testing.T) {
		user := testfixtures.NewUserFixture()
		if _, err := stack.Users.Register(ctx, user.RegisterInput()); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		result, err := stack.Auth.Authenticate(ctx, application.AuthenticateParams{Email: user.Email, Password: user.Password})
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		principal, err := stack.Auth.ValidateSession(ctx, result.Session.Token)
		if err != nil || principal.Email != user.Email {
			t.Fatalf("unexpected principal %+v %v", principal, err)
		}
	})
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("memory driver", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.StorageDriver = config.DriverMemory
		store, err := openStore(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		if _, ok := store.(*memory.Storage); !ok {
			t.Fatalf("expected memory storage, got %T", store)
		}
	})

	t.Run("sqlite driver migrates the database", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.SQLiteDSN = t.TempDir() + "/data/scheduler.db"
		store, err := openStore(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatalf("openStore failed: %v", err)
		}
		defer store.Close()
		if _, err := store.Rooms().ListRooms(ctx); err != nil {
			t.Fatalf("expected migrated schema, got %v", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.StorageDriver = "mysql"
		if _, err := openStore(ctx, cfg, discardLogger()); err == nil {
			t.Fatalf("expected error for unknown driver")
		}
	})
}

type failingPingStore struct {
	persistence.Store
}

func (failingPingStore) Ping(ctx context.Context) error {
	return errors.New("database is locked")
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	healthHandler(memory.New(), discardLogger())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	healthHandler(failingPingStore{Store: memory.New()}, discardLogger())(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRandomHex(t *testing.T) {
	t.Parallel()

	a, b := randomHex(32), randomHex(32)
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}
