// Package sqlite implements persistence.Store on an SQLite database using
// the pure Go modernc.org/sqlite driver. The schema is applied from embedded
// migration files on Open.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the SQLite repositories over one connection pool.
type Store struct {
	pool         *ConnectionPool
	users        *UserRepository
	rooms        *RoomRepository
	reservations *ReservationRepository
	sessions     *SessionRepository
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config and brings its schema
// up to date.
func Open(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:         pool,
		users:        NewUserRepository(pool),
		rooms:        NewRoomRepository(pool),
		reservations: NewReservationRepository(pool),
		sessions:     NewSessionRepository(pool),
	}, nil
}

// Migrate applies the embedded migrations to the pool's database.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	manager := migration.NewManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(pool.DB(), logger),
		files,
		migration.WithChecksumVerification(),
		migration.WithLogger(logger),
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) Users() persistence.UserRepository               { return s.users }
func (s *Store) Rooms() persistence.RoomRepository               { return s.rooms }
func (s *Store) Reservations() persistence.ReservationRepository { return s.reservations }
func (s *Store) Sessions() persistence.SessionRepository         { return s.sessions }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.DB().PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
