// Package memory provides a map-backed persistence.Store for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/room-scheduler/internal/persistence"
)

// Storage keeps every record in process memory behind a single lock.
type Storage struct {
	mu           sync.RWMutex
	users        map[string]persistence.User
	rooms        map[string]persistence.Room
	reservations map[string]persistence.Reservation
	sessions     map[string]persistence.Session
	tokens       map[string]string
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		users:        make(map[string]persistence.User),
		rooms:        make(map[string]persistence.Room),
		reservations: make(map[string]persistence.Reservation),
		sessions:     make(map[string]persistence.Session),
		tokens:       make(map[string]string),
	}
}

func (s *Storage) Users() persistence.UserRepository               { return s }
func (s *Storage) Rooms() persistence.RoomRepository               { return s }
func (s *Storage) Reservations() persistence.ReservationRepository { return s }
func (s *Storage) Sessions() persistence.SessionRepository         { return s }

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	lower := strings.ToLower(user.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == lower {
			return persistence.ErrDuplicate
		}
	}

	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(email)
	for _, user := range s.users {
		if strings.ToLower(user.Email) == lower {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// --- RoomRepository implementation ---

// CreateRoom stores a new room.
func (s *Storage) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.Capacity != nil && *room.Capacity < 1 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

// UpdateRoom replaces an existing room.
func (s *Storage) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if room.Capacity != nil && *room.Capacity < 1 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rooms[room.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	room.CreatedAt = existing.CreatedAt
	s.rooms[room.ID] = cloneRoom(room)
	return nil
}

// GetRoom retrieves a room by ID.
func (s *Storage) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return cloneRoom(room), nil
}

// ListRooms returns all rooms ordered by name then ID.
func (s *Storage) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]persistence.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, cloneRoom(room))
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

// DeleteRoom removes a room together with its reservations.
func (s *Storage) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.rooms, id)

	for reservationID, reservation := range s.reservations {
		if reservation.RoomID == id {
			delete(s.reservations, reservationID)
		}
	}
	return nil
}

// --- ReservationRepository implementation ---

// CreateReservation stores a new reservation for an existing room.
func (s *Storage) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[reservation.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.rooms[reservation.RoomID]; !ok {
		return persistence.ErrForeignKeyViolation
	}

	s.reservations[reservation.ID] = cloneReservation(reservation)
	return nil
}

// UpdateReservation replaces an existing reservation.
func (s *Storage) UpdateReservation(ctx context.Context, reservation persistence.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reservations[reservation.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if _, ok := s.rooms[reservation.RoomID]; !ok {
		return persistence.ErrForeignKeyViolation
	}

	reservation.CreatedAt = existing.CreatedAt
	s.reservations[reservation.ID] = cloneReservation(reservation)
	return nil
}

// GetReservation retrieves a reservation joined with its room.
func (s *Storage) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return s.joinRoomLocked(reservation), nil
}

// ListReservations returns matching reservations ordered by start then ID.
func (s *Storage) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reservations := make([]persistence.Reservation, 0)
	for _, reservation := range s.reservations {
		if !filter.Matches(reservation) {
			continue
		}
		reservations = append(reservations, s.joinRoomLocked(reservation))
	}

	sort.Slice(reservations, func(i, j int) bool {
		if reservations[i].Start.Equal(reservations[j].Start) {
			return reservations[i].ID < reservations[j].ID
		}
		return reservations[i].Start.Before(reservations[j].Start)
	})
	return reservations, nil
}

// DeleteReservation removes a reservation by ID.
func (s *Storage) DeleteReservation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.reservations, id)
	return nil
}

func (s *Storage) joinRoomLocked(reservation persistence.Reservation) persistence.Reservation {
	joined := cloneReservation(reservation)
	if room, ok := s.rooms[reservation.RoomID]; ok {
		joined.RoomName = room.Name
		joined.RoomLocation = room.Location
	}
	return joined
}

// --- SessionRepository implementation ---

// CreateSession stores a new session for an existing user.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return persistence.Session{}, persistence.ErrForeignKeyViolation
	}
	if _, ok := s.sessions[session.ID]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}
	if _, ok := s.tokens[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}

	stored := cloneSession(session)
	s.sessions[stored.ID] = stored
	s.tokens[stored.Token] = stored.ID
	return cloneSession(stored), nil
}

// GetSession retrieves a session by token.
func (s *Storage) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(s.sessions[id]), nil
}

// UpdateSession replaces a session, re-indexing its token when rotated.
func (s *Storage) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if current.Token != session.Token {
		if _, taken := s.tokens[session.Token]; taken {
			return persistence.Session{}, persistence.ErrDuplicate
		}
		delete(s.tokens, current.Token)
	}

	stored := cloneSession(session)
	stored.CreatedAt = current.CreatedAt
	s.sessions[stored.ID] = stored
	s.tokens[stored.Token] = stored.ID
	return cloneSession(stored), nil
}

// RevokeSession marks a session as revoked.
func (s *Storage) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}

	session := s.sessions[id]
	revoked := revokedAt.UTC()
	session.RevokedAt = &revoked
	session.UpdatedAt = revoked
	s.sessions[id] = session
	return cloneSession(session), nil
}

// DeleteExpiredSessions drops sessions whose expiry is at or before reference.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if session.ExpiresAt.IsZero() || session.ExpiresAt.After(reference) {
			continue
		}
		delete(s.sessions, id)
		delete(s.tokens, session.Token)
	}
	return nil
}

// --- Helpers ---

func cloneRoom(room persistence.Room) persistence.Room {
	room.Capacity = cloneInt(room.Capacity)
	room.Description = cloneString(room.Description)
	return room
}

func cloneReservation(reservation persistence.Reservation) persistence.Reservation {
	reservation.Description = cloneString(reservation.Description)
	reservation.CateringQuantity = cloneInt(reservation.CateringQuantity)
	reservation.CateringDescription = cloneString(reservation.CateringDescription)
	reservation.RoomName = ""
	reservation.RoomLocation = ""
	return reservation
}

func cloneSession(session persistence.Session) persistence.Session {
	if session.RevokedAt != nil {
		revoked := *session.RevokedAt
		session.RevokedAt = &revoked
	}
	return session
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
