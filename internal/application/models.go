package application

import "time"

// Principal represents the authenticated caller invoking a service method.
// Scheduling operations record it for auditing only.
type Principal struct {
	UserID string
	Email  string
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name        string
	Location    string
	Capacity    *int
	Description *string
	Active      *bool
}

// RoomPatch captures a partial room update; nil fields keep their current value.
type RoomPatch struct {
	Name        *string
	Location    *string
	Capacity    *int
	Description *string
	Active      *bool
	// ClearCapacity removes a previously set capacity.
	ClearCapacity bool
}

// Room represents a bookable physical room.
type Room struct {
	ID          string
	Name        string
	Location    string
	Capacity    *int
	Description *string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Principal Principal
	Input     RoomInput
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	Principal Principal
	RoomID    string
	Patch     RoomPatch
}

// ListRoomsParams narrows room listings.
type ListRoomsParams struct {
	Principal Principal
	Active    *bool
}

// Catering describes refreshments requested with a reservation. Quantity and
// Description are only kept when Required is true.
type Catering struct {
	Required    bool
	Quantity    *int
	Description *string
}

// CateringPatch captures a partial catering update.
type CateringPatch struct {
	Required    *bool
	Quantity    *int
	Description *string
}

// ReservationInput captures caller provided reservation fields.
type ReservationInput struct {
	RoomID      string
	Responsible string
	Start       time.Time
	End         time.Time
	Description *string
	Catering    Catering
}

// ReservationPatch captures a partial reservation update; nil fields keep their current value.
type ReservationPatch struct {
	RoomID      *string
	Responsible *string
	Start       *time.Time
	End         *time.Time
	Description *string
	Catering    CateringPatch
}

// Reservation is a committed booking of a room for [Start, End).
type Reservation struct {
	ID          string
	RoomID      string
	Responsible string
	Start       time.Time
	End         time.Time
	Description *string
	Catering    Catering
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReservationView is the read model of a reservation, denormalised with the
// owning room's display fields.
type ReservationView struct {
	Reservation
	RoomName     string
	RoomLocation string
}

// CreateReservationParams wraps the data required to create a reservation.
type CreateReservationParams struct {
	Principal Principal
	Input     ReservationInput
}

// UpdateReservationParams wraps the data required to update a reservation.
type UpdateReservationParams struct {
	Principal     Principal
	ReservationID string
	Patch         ReservationPatch
}

// ListReservationsParams narrows reservation listings. Every supplied filter
// must match. Responsible is a case-sensitive substring match; From and To
// select reservations whose interval intersects [From, To).
type ListReservationsParams struct {
	Principal   Principal
	RoomID      string
	Responsible string
	From        *time.Time
	To          *time.Time
}

// ReservationRepositoryFilter is the filter passed to the reservation store.
type ReservationRepositoryFilter struct {
	RoomID      string
	Responsible string
	From        *time.Time
	To          *time.Time
}

// BusyInterval is a committed interval reported by availability queries.
type BusyInterval struct {
	ReservationID string
	Start         time.Time
	End           time.Time
}

// RegisterUserInput captures self-service registration fields.
type RegisterUserInput struct {
	Email       string
	DisplayName string
	Password    string
}

// User represents an account able to obtain sessions.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
	Disabled     bool
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// RefreshSessionParams captures the data required to refresh an existing session.
type RefreshSessionParams struct {
	Token       string
	Fingerprint string
}

// RefreshSessionResult captures the outcome of rotating a session token.
type RefreshSessionResult struct {
	Session Session
}
