package persistence

import "time"

// User represents an account able to log in.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room represents a bookable room.
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

// Reservation represents a booking of a room for [Start, End).
// RoomName and RoomLocation are filled on reads only.
type Reservation struct {
	ID                  string
	RoomID              string
	Responsible         string
	Start               time.Time
	End                 time.Time
	Description         *string
	CateringRequired    bool
	CateringQuantity    *int
	CateringDescription *string
	CreatedAt           time.Time
	UpdatedAt           time.Time

	RoomName     string
	RoomLocation string
}

// Session represents an authentication session persisted for a user.
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
