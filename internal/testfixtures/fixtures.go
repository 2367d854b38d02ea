package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-scheduler/internal/application"
	"github.com/example/room-scheduler/internal/persistence"
)

var (
	userCounter        uint64
	roomCounter        uint64
	reservationCounter uint64
)

var referenceTime = time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)

// ReferenceTime is the Monday 09:00 UTC baseline fixtures are built around.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns the reference day shifted to hour:minute UTC.
func At(hour, minute int) time.Time {
	return time.Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day(), hour, minute, 0, 0, time.UTC)
}

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic account.
type UserFixture struct {
	ID          string
	Email       string
	DisplayName string
	Password    string
	CreatedAt   time.Time
}

// UserOption configures a UserFixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a unique user fixture.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	fixture := UserFixture{
		ID:          fmt.Sprintf("user-%03d", idx),
		Email:       fmt.Sprintf("user%03d@example.com", idx),
		DisplayName: fmt.Sprintf("User %03d", idx),
		Password:    "correct-horse",
		CreatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserEmail overrides the email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

// WithUserPassword overrides the plaintext password.
func WithUserPassword(password string) UserOption {
	return func(f *UserFixture) { f.Password = password }
}

// RegisterInput returns the registration payload for the fixture.
func (f UserFixture) RegisterInput() application.RegisterUserInput {
	return application.RegisterUserInput{Email: f.Email, DisplayName: f.DisplayName, Password: f.Password}
}

// Persistence returns the stored form of the fixture with the given hash.
func (f UserFixture) Persistence(passwordHash string) persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: passwordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture is a deterministic room.
type RoomFixture struct {
	ID          string
	Name        string
	Location    string
	Capacity    *int
	Description *string
	Active      bool
	CreatedAt   time.Time
}

// RoomOption configures a RoomFixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a unique, active room fixture seating six.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	capacity := 6
	fixture := RoomFixture{
		ID:        fmt.Sprintf("room-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		Location:  fmt.Sprintf("Floor %d", idx%10),
		Capacity:  &capacity,
		Active:    true,
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the identifier.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) { f.ID = id }
}

// WithRoomName overrides the display name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) { f.Name = name }
}

// WithRoomInactive marks the room as not accepting reservations.
func WithRoomInactive() RoomOption {
	return func(f *RoomFixture) { f.Active = false }
}

// WithoutRoomCapacity leaves the capacity unset.
func WithoutRoomCapacity() RoomOption {
	return func(f *RoomFixture) { f.Capacity = nil }
}

// Input returns the creation payload for the fixture.
func (f RoomFixture) Input() application.RoomInput {
	active := f.Active
	return application.RoomInput{
		Name:        f.Name,
		Location:    f.Location,
		Capacity:    copyIntPtr(f.Capacity),
		Description: copyStringPtr(f.Description),
		Active:      &active,
	}
}

// Persistence returns the stored form of the fixture.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:          f.ID,
		Name:        f.Name,
		Location:    f.Location,
		Capacity:    copyIntPtr(f.Capacity),
		Description: copyStringPtr(f.Description),
		Active:      f.Active,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// -------------------------- Reservation fixtures --------------------------

// ReservationFixture is a deterministic one-hour booking at the reference time.
type ReservationFixture struct {
	ID          string
	RoomID      string
	Responsible string
	Start       time.Time
	End         time.Time
	Description *string
	Catering    application.Catering
}

// ReservationOption configures a ReservationFixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a unique reservation fixture for roomID.
func NewReservationFixture(roomID string, opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	fixture := ReservationFixture{
		ID:          fmt.Sprintf("reservation-%03d", idx),
		RoomID:      roomID,
		Responsible: "Alice",
		Start:       referenceTime,
		End:         referenceTime.Add(time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithReservationInterval overrides the booked interval.
func WithReservationInterval(start, end time.Time) ReservationOption {
	return func(f *ReservationFixture) { f.Start, f.End = start, end }
}

// WithReservationResponsible overrides the responsible person.
func WithReservationResponsible(name string) ReservationOption {
	return func(f *ReservationFixture) { f.Responsible = name }
}

// WithReservationCatering requests catering for quantity people.
func WithReservationCatering(quantity int, description string) ReservationOption {
	return func(f *ReservationFixture) {
		f.Catering = application.Catering{Required: true, Quantity: &quantity, Description: &description}
	}
}

// Input returns the creation payload for the fixture.
func (f ReservationFixture) Input() application.ReservationInput {
	return application.ReservationInput{
		RoomID:      f.RoomID,
		Responsible: f.Responsible,
		Start:       f.Start,
		End:         f.End,
		Description: copyStringPtr(f.Description),
		Catering: application.Catering{
			Required:    f.Catering.Required,
			Quantity:    copyIntPtr(f.Catering.Quantity),
			Description: copyStringPtr(f.Catering.Description),
		},
	}
}

// Persistence returns the stored form of the fixture.
func (f ReservationFixture) Persistence() persistence.Reservation {
	return persistence.Reservation{
		ID:                  f.ID,
		RoomID:              f.RoomID,
		Responsible:         f.Responsible,
		Start:               f.Start,
		End:                 f.End,
		Description:         copyStringPtr(f.Description),
		CateringRequired:    f.Catering.Required,
		CateringQuantity:    copyIntPtr(f.Catering.Quantity),
		CateringDescription: copyStringPtr(f.Catering.Description),
		CreatedAt:           referenceTime,
		UpdatedAt:           referenceTime,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyIntPtr(src *int) *int {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
