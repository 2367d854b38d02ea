package testfixtures

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/room-scheduler/internal/application"
	"github.com/example/room-scheduler/internal/scheduler"
)

// ServiceFactory assembles the scheduling services around one index with a
// deterministic clock and identifier sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Tokens      *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Tokens:      NewIDGenerator("token"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// StackDeps are the repositories a Stack is built over.
type StackDeps struct {
	Rooms        application.RoomRepository
	Reservations application.ReservationRepository
	Users        application.UserRepository
	Credentials  application.CredentialStore
	Sessions     application.SessionRepository
	// With neither set, PlainHash and VerifyPlainHash keep tests fast.
	PasswordHasher   application.PasswordHasher
	PasswordVerifier application.PasswordVerifier
	SessionTTL     time.Duration
}

// Stack is a fully wired set of services sharing one scheduling index.
type Stack struct {
	Index        *scheduler.Index
	Rooms        *application.RoomService
	Reservations *application.ReservationService
	Availability *application.AvailabilityService
	Users        *application.UserService
	Auth         *application.AuthService
}

// NewStack builds the services over deps and warms the index from the
// repositories.
func (f *ServiceFactory) NewStack(ctx context.Context, deps StackDeps) (*Stack, error) {
	index := scheduler.NewIndex()
	if err := application.LoadIndex(ctx, index, deps.Rooms, deps.Reservations, f.Logger); err != nil {
		return nil, err
	}

	hash, verify := deps.PasswordHasher, deps.PasswordVerifier
	if hash == nil && verify == nil {
		hash, verify = PlainHash, VerifyPlainHash
	}

	ids := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()
	return &Stack{
		Index:        index,
		Rooms:        application.NewRoomServiceWithLogger(deps.Rooms, index, ids, now, f.Logger),
		Reservations: application.NewReservationServiceWithLogger(deps.Reservations, index, ids, now, f.Logger),
		Availability: application.NewAvailabilityService(index, f.Logger),
		Users:        application.NewUserService(deps.Users, hash, ids, now, f.Logger),
		Auth:         application.NewAuthServiceWithLogger(deps.Credentials, deps.Sessions, verify, f.Tokens.NextFunc(), now, deps.SessionTTL, f.Logger),
	}, nil
}

const plainPrefix = "plain:"

// PlainHash is a reversible stand-in for argon2id used to keep tests fast.
func PlainHash(password string) (string, error) {
	return plainPrefix + password, nil
}

// VerifyPlainHash checks passwords hashed by PlainHash.
func VerifyPlainHash(hashed, password string) error {
	if hashed != plainPrefix+password {
		return application.ErrInvalidCredentials
	}
	return nil
}
