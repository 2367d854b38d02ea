package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/example/room-scheduler/internal/application"
)

const testToken = "good-token"

var testPrincipal = application.Principal{UserID: "user-1", Email: "alice@example.com"}

type sessionStub struct{}

func (sessionStub) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	switch token {
	case testToken:
		return testPrincipal, nil
	case "expired-token":
		return application.Principal{}, application.ErrSessionExpired
	default:
		return application.Principal{}, application.ErrUnauthorized
	}
}

type authStub struct {
	params  application.AuthenticateParams
	revoked string
	err     error
}

func (a *authStub) Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error) {
	a.params = params
	if a.err != nil {
		return application.AuthenticateResult{}, a.err
	}
	return application.AuthenticateResult{
		User:    application.User{ID: "user-1", Email: params.Email},
		Session: application.Session{Token: "issued", ExpiresAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}, nil
}

func (a *authStub) RefreshSession(ctx context.Context, params application.RefreshSessionParams) (application.RefreshSessionResult, error) {
	return application.RefreshSessionResult{Session: application.Session{Token: "rotated", UserID: "user-1"}}, a.err
}

func (a *authStub) RevokeSession(ctx context.Context, token string) error {
	a.revoked = token
	return a.err
}

type userStub struct {
	registered application.RegisterUserInput
	err        error
}

func (u *userStub) Register(ctx context.Context, input application.RegisterUserInput) (application.User, error) {
	u.registered = input
	if u.err != nil {
		return application.User{}, u.err
	}
	return application.User{ID: "user-9", Email: input.Email, DisplayName: input.DisplayName}, nil
}

func (u *userStub) GetUser(ctx context.Context, userID string) (application.User, error) {
	return application.User{ID: userID, Email: "alice@example.com", DisplayName: "Alice"}, nil
}

type roomStub struct {
	deleted   string
	listed    application.ListRoomsParams
	activated bool
	err       error
}

func (s *roomStub) CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error) {
	if s.err != nil {
		return application.Room{}, s.err
	}
	return application.Room{ID: "room-1", Name: params.Input.Name, Location: params.Input.Location, Active: true}, nil
}

func (s *roomStub) GetRoom(ctx context.Context, roomID string) (application.Room, error) {
	if s.err != nil {
		return application.Room{}, s.err
	}
	return application.Room{ID: roomID, Name: "Orion", Location: "3F", Active: true}, nil
}

func (s *roomStub) UpdateRoom(ctx context.Context, params application.UpdateRoomParams) (application.Room, error) {
	if s.err != nil {
		return application.Room{}, s.err
	}
	room := application.Room{ID: params.RoomID, Name: "Orion", Location: "3F"}
	if params.Patch.Name != nil {
		room.Name = *params.Patch.Name
	}
	return room, nil
}

func (s *roomStub) ActivateRoom(ctx context.Context, principal application.Principal, roomID string) (application.Room, error) {
	s.activated = true
	return application.Room{ID: roomID, Active: true}, s.err
}

func (s *roomStub) DeactivateRoom(ctx context.Context, principal application.Principal, roomID string) (application.Room, error) {
	s.activated = false
	return application.Room{ID: roomID, Active: false}, s.err
}

func (s *roomStub) DeleteRoom(ctx context.Context, principal application.Principal, roomID string) error {
	s.deleted = roomID
	return s.err
}

func (s *roomStub) ListRooms(ctx context.Context, params application.ListRoomsParams) ([]application.Room, error) {
	s.listed = params
	return []application.Room{{ID: "room-1", Name: "Orion"}}, s.err
}

type availabilityStub struct {
	start, end time.Time
	available  bool
	err        error
}

func (a *availabilityStub) IsAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error) {
	a.start, a.end = start, end
	return a.available, a.err
}

func (a *availabilityStub) BusyIntervals(ctx context.Context, roomID string, from, to time.Time) ([]application.BusyInterval, error) {
	return []application.BusyInterval{{ReservationID: "res-1", Start: from, End: to}}, a.err
}

type reservationStub struct {
	created   application.CreateReservationParams
	updated   application.UpdateReservationParams
	listed    application.ListReservationsParams
	createErr error
	err       error
}

func (s *reservationStub) CreateReservation(ctx context.Context, params application.CreateReservationParams) (application.Reservation, error) {
	s.created = params
	if s.createErr != nil {
		return application.Reservation{}, s.createErr
	}
	return application.Reservation{
		ID:          "res-1",
		RoomID:      params.Input.RoomID,
		Responsible: params.Input.Responsible,
		Start:       params.Input.Start,
		End:         params.Input.End,
	}, nil
}

func (s *reservationStub) UpdateReservation(ctx context.Context, params application.UpdateReservationParams) (application.Reservation, error) {
	s.updated = params
	return application.Reservation{ID: params.ReservationID}, s.err
}

func (s *reservationStub) DeleteReservation(ctx context.Context, principal application.Principal, reservationID string) error {
	return s.err
}

func (s *reservationStub) GetReservation(ctx context.Context, reservationID string) (application.ReservationView, error) {
	if s.err != nil {
		return application.ReservationView{}, s.err
	}
	return application.ReservationView{
		Reservation:  application.Reservation{ID: reservationID, RoomID: "room-1"},
		RoomName:     "Orion",
		RoomLocation: "3F",
	}, nil
}

func (s *reservationStub) ListReservations(ctx context.Context, params application.ListReservationsParams) ([]application.ReservationView, error) {
	s.listed = params
	return nil, s.err
}

type testServer struct {
	handler      http.Handler
	auth         *authStub
	users        *userStub
	rooms        *roomStub
	availability *availabilityStub
	reservations *reservationStub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		auth:         &authStub{},
		users:        &userStub{},
		rooms:        &roomStub{},
		availability: &availabilityStub{available: true},
		reservations: &reservationStub{},
	}
	ts.handler = NewRouter(RouterConfig{
		Auth:         NewAuthHandler(ts.auth, logger),
		Users:        NewUserHandler(ts.users, logger),
		Rooms:        NewRoomHandler(ts.rooms, ts.availability, logger),
		Reservations: NewReservationHandler(ts.reservations, logger),
		Sessions:     sessionStub{},
		Logger:       logger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	t.Run("accepts a JSON body", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":" Alice@Example.com ","password":"secret123"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[tokenResponse](t, rec)
		if resp.AccessToken != "issued" || resp.TokenType != "bearer" || resp.ExpiresAt != "2024-05-01T12:00:00Z" {
			t.Fatalf("unexpected token response %+v", resp)
		}
		if ts.auth.params.Email != "alice@example.com" {
			t.Fatalf("expected normalised email, got %q", ts.auth.params.Email)
		}
		if rec.Header().Get("X-Session-Token") != "issued" {
			t.Fatalf("expected session token header")
		}
	})

	t.Run("accepts form-encoded username and password", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		form := url.Values{"username": {"bob@example.com"}, "password": {"builder123"}}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ts.auth.params.Email != "bob@example.com" || ts.auth.params.Password != "builder123" {
			t.Fatalf("unexpected credentials %+v", ts.auth.params)
		}
	})

	t.Run("rejects wrong credentials with 401", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.auth.err = application.ErrInvalidCredentials
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@example.com","password":"nope"}`))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.ErrorCode != "AUTH_INVALID_CREDENTIALS" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/auth/logout", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if ts.auth.revoked != testToken {
		t.Fatalf("expected token to be revoked, got %q", ts.auth.revoked)
	}
}

func TestUserHandler(t *testing.T) {
	t.Parallel()

	t.Run("register does not require a session", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"name":"Alice","email":"alice@example.com","password":"wonderland"}`))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if ts.users.registered.DisplayName != "Alice" {
			t.Fatalf("unexpected registration %+v", ts.users.registered)
		}
	})

	t.Run("duplicate email yields 409", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.users.err = application.ErrAlreadyExists
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"name":"Alice","email":"alice@example.com","password":"wonderland"}`))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("me describes the session principal", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/auth/me", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decodeBody[userDTO](t, rec); resp.ID != testPrincipal.UserID {
			t.Fatalf("unexpected user %+v", resp)
		}
	})
}

func TestRoomHandler(t *testing.T) {
	t.Parallel()

	t.Run("create returns the stored room", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/rooms", `{"name":"Orion","location":"3F","capacity":8}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if resp := decodeBody[roomDTO](t, rec); resp.ID != "room-1" || resp.Name != "Orion" || !resp.Active {
			t.Fatalf("unexpected room %+v", resp)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/rooms", `{"name":"Orion","floor":3}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("validation errors carry field details", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.rooms.err = &application.ValidationError{FieldErrors: map[string]string{"name": "name is required"}}
		rec := ts.do(t, http.MethodPost, "/api/rooms", `{"name":""}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if resp := decodeBody[errorResponse](t, rec); resp.Errors["name"] == "" {
			t.Fatalf("expected field error, got %+v", resp)
		}
	})

	t.Run("get of an unknown room yields 404", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.rooms.err = application.ErrRoomNotFound
		rec := ts.do(t, http.MethodGet, "/api/rooms/missing", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list forwards the active filter", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/rooms?active=false", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ts.rooms.listed.Active == nil || *ts.rooms.listed.Active {
			t.Fatalf("expected active=false filter, got %+v", ts.rooms.listed)
		}
		if ts.rooms.listed.Principal != testPrincipal {
			t.Fatalf("expected principal to be forwarded, got %+v", ts.rooms.listed.Principal)
		}
	})

	t.Run("deactivate and delete address the path room", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		if rec := ts.do(t, http.MethodPost, "/api/rooms/room-7/deactivate", ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec := ts.do(t, http.MethodDelete, "/api/rooms/room-7", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if ts.rooms.deleted != "room-7" {
			t.Fatalf("expected room-7 to be deleted, got %q", ts.rooms.deleted)
		}
	})

	t.Run("availability parses offsets and answers in UTC", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		query := url.Values{"start": {"2024-05-01T10:00:00+09:00"}, "end": {"2024-05-01T11:00:00+09:00"}}
		rec := ts.do(t, http.MethodGet, "/api/rooms/room-1/availability?"+query.Encode(), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeBody[availabilityResponse](t, rec)
		if !resp.Available || resp.Start != "2024-05-01T01:00:00Z" {
			t.Fatalf("unexpected availability %+v", resp)
		}
		if !ts.availability.start.Equal(time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected start forwarded %v", ts.availability.start)
		}
	})

	t.Run("availability requires both bounds", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/rooms/room-1/availability?start=2024-05-01T10:00:00Z", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("availability surfaces inverted intervals as 422", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.availability.err = application.ErrInvalidInterval
		rec := ts.do(t, http.MethodGet, "/api/rooms/room-1/availability?start=2024-05-01T11:00:00Z&end=2024-05-01T10:00:00Z", "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("busy lists committed intervals", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/rooms/room-1/busy?from=2024-05-01T00:00:00Z&to=2024-05-02T00:00:00Z", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decodeBody[[]busyIntervalDTO](t, rec); len(resp) != 1 || resp[0].ReservationID != "res-1" {
			t.Fatalf("unexpected busy intervals %+v", resp)
		}
	})
}

func TestReservationHandler(t *testing.T) {
	t.Parallel()

	const body = `{"room_id":"room-1","responsible":"Alice","start":"2024-05-01T10:00:00Z","end":"2024-05-01T11:00:00Z","catering":{"required":true,"quantity":4}}`

	t.Run("create forwards the decoded input", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/reservations", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		input := ts.reservations.created.Input
		if input.RoomID != "room-1" || !input.Catering.Required || input.Catering.Quantity == nil || *input.Catering.Quantity != 4 {
			t.Fatalf("unexpected input %+v", input)
		}
		if !input.End.Equal(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected end %v", input.End)
		}
		if ts.reservations.created.Principal != testPrincipal {
			t.Fatalf("expected principal to be forwarded")
		}
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", &application.ConflictError{RoomID: "room-1", ReservationID: "res-0"}, http.StatusConflict, "RESERVATION_CONFLICT"},
		{"inactive room", application.ErrRoomInactive, http.StatusConflict, "ROOM_INACTIVE"},
		{"invalid interval", application.ErrInvalidInterval, http.StatusUnprocessableEntity, "INVALID_INTERVAL"},
		{"unknown room", application.ErrRoomNotFound, http.StatusNotFound, "ROOM_NOT_FOUND"},
		{"storage failure", &application.UnavailableError{Op: "create reservation", Err: io.ErrUnexpectedEOF}, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
	}
	for _, tc := range errorCases {
		t.Run("create maps "+tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t)
			ts.reservations.createErr = tc.err
			rec := ts.do(t, http.MethodPost, "/api/reservations", body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if resp := decodeBody[errorResponse](t, rec); resp.ErrorCode != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, resp)
			}
		})
	}

	t.Run("conflict names the blocking reservation", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.reservations.createErr = &application.ConflictError{RoomID: "room-1", ReservationID: "res-0"}
		rec := ts.do(t, http.MethodPost, "/api/reservations", body)
		if resp := decodeBody[errorResponse](t, rec); resp.ConflictingID != "res-0" {
			t.Fatalf("expected conflicting id, got %+v", resp)
		}
	})

	t.Run("timestamps without an offset are rejected", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/reservations", `{"room_id":"room-1","responsible":"A","start":"2024-05-01T10:00:00","end":"2024-05-01T11:00:00"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("update sends only supplied fields", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPut, "/api/reservations/res-1", `{"end":"2024-05-01T12:00:00Z"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		patch := ts.reservations.updated.Patch
		if ts.reservations.updated.ReservationID != "res-1" || patch.End == nil || patch.Start != nil || patch.RoomID != nil {
			t.Fatalf("unexpected patch %+v", ts.reservations.updated)
		}
	})

	t.Run("get includes room details", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/reservations/res-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decodeBody[reservationDTO](t, rec); resp.RoomName != "Orion" || resp.RoomLocation != "3F" {
			t.Fatalf("unexpected reservation %+v", resp)
		}
	})

	t.Run("delete of a missing reservation yields 404", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		ts.reservations.err = application.ErrReservationNotFound
		rec := ts.do(t, http.MethodDelete, "/api/reservations/res-1", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list forwards filters and returns an empty array", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/reservations?room_id=room-1&responsible=Ali&from=2024-05-01T00:00:00Z", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Fatalf("expected empty array, got %q", rec.Body.String())
		}
		listed := ts.reservations.listed
		if listed.RoomID != "room-1" || listed.Responsible != "Ali" || listed.From == nil || listed.To != nil {
			t.Fatalf("unexpected filters %+v", listed)
		}
	})

	t.Run("list rejects malformed bounds", func(t *testing.T) {
		t.Parallel()

		ts := newTestServer(t)
		rec := ts.do(t, http.MethodGet, "/api/reservations?to=tomorrow", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
