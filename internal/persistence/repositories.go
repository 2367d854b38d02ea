package persistence

import (
	"context"
	"strings"
	"time"
)

// UserRepository stores user accounts. Emails are unique case-insensitively.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// RoomRepository exposes CRUD operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	// DeleteRoom removes the room and all of its reservations atomically.
	DeleteRoom(ctx context.Context, id string) error
}

// ReservationFilter narrows reservation queries. Zero values match everything.
type ReservationFilter struct {
	RoomID string
	// Responsible matches as a case-sensitive substring.
	Responsible string
	// From and To select reservations intersecting [From, To).
	From *time.Time
	To   *time.Time
}

// Matches reports whether the reservation satisfies every set criterion.
func (f ReservationFilter) Matches(r Reservation) bool {
	if f.RoomID != "" && r.RoomID != f.RoomID {
		return false
	}
	if f.Responsible != "" && !strings.Contains(r.Responsible, f.Responsible) {
		return false
	}
	if f.From != nil && !r.End.After(*f.From) {
		return false
	}
	if f.To != nil && !r.Start.Before(*f.To) {
		return false
	}
	return true
}

// ReservationRepository stores reservations. Reads join the owning room's
// name and location. Writes referencing a missing room fail with
// ErrForeignKeyViolation.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) error
	UpdateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// Store bundles the repositories of one backend.
type Store interface {
	Users() UserRepository
	Rooms() RoomRepository
	Reservations() ReservationRepository
	Sessions() SessionRepository
	Close() error
}
