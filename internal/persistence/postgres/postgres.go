// Package postgres implements persistence.Store on PostgreSQL using pgx.
// Queries are written by hand against pgxpool; the schema is embedded and
// applied idempotently on Open.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/room-scheduler/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes mapped onto persistence sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// Config holds connection pool settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ConnectAttempts bounds the retries while the server is starting up.
	ConnectAttempts int
	RetryDelay      time.Duration
}

// DefaultConfig returns pool defaults for a small service.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectAttempts: 5,
		RetryDelay:      2 * time.Second,
	}
}

// Store implements persistence.Store over a pgx connection pool.
type Store struct {
	pool         *pgxpool.Pool
	users        *UserRepository
	rooms        *RoomRepository
	reservations *ReservationRepository
	sessions     *SessionRepository
}

var _ persistence.Store = (*Store)(nil)

// Open connects to PostgreSQL, retrying while the server comes up, and
// applies the schema.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	attempts := max(config.ConnectAttempts, 1)
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = connect(ctx, poolConfig)
		if err == nil {
			break
		}
		logger.WarnContext(ctx, "postgres connect attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if attempt == attempts {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(config.RetryDelay):
		}
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	logger.InfoContext(ctx, "postgres store ready")

	return &Store{
		pool:         pool,
		users:        &UserRepository{db: pool},
		rooms:        &RoomRepository{db: pool},
		reservations: &ReservationRepository{db: pool},
		sessions:     &SessionRepository{db: pool},
	}, nil
}

func connect(ctx context.Context, config *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) Users() persistence.UserRepository               { return s.users }
func (s *Store) Rooms() persistence.RoomRepository               { return s.rooms }
func (s *Store) Reservations() persistence.ReservationRepository { return s.reservations }
func (s *Store) Sessions() persistence.SessionRepository         { return s.sessions }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// mapError translates pgx errors into persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.Join(persistence.ErrDuplicate, err)
		case codeForeignKeyViolation:
			return errors.Join(persistence.ErrForeignKeyViolation, err)
		case codeCheckViolation, codeNotNullViolation:
			return errors.Join(persistence.ErrConstraintViolation, err)
		}
	}
	return err
}

// affected returns ErrNotFound when a write matched nothing.
func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
