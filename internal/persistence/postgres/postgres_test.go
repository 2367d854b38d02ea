package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/persistence/storetest"
)

// testDSNEnv names a disposable database; its tables are truncated.
const testDSNEnv = "SCHEDULER_POSTGRES_TEST_DSN"

func TestStore_Contract(t *testing.T) {
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storetest.Run(t, func(t *testing.T) persistence.Store {
		ctx := context.Background()
		config := DefaultConfig(dsn)
		config.ConnectAttempts = 1

		store, err := Open(ctx, config, logger)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if _, err := store.pool.Exec(ctx, `TRUNCATE sessions, reservations, rooms, users`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return store
	})
}

func TestMapError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code string
		want error
	}{
		{codeUniqueViolation, persistence.ErrDuplicate},
		{codeForeignKeyViolation, persistence.ErrForeignKeyViolation},
		{codeCheckViolation, persistence.ErrConstraintViolation},
		{codeNotNullViolation, persistence.ErrConstraintViolation},
	}
	for _, tc := range cases {
		err := mapError(&pgconn.PgError{Code: tc.code})
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %s: expected %v, got %v", tc.code, tc.want, err)
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			t.Fatalf("code %s: expected driver error to stay in the chain", tc.code)
		}
	}

	other := errors.New("connection reset")
	if got := mapError(other); got != other {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
	if mapError(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	t.Parallel()

	config := DefaultConfig("postgres://%zz")
	if _, err := Open(context.Background(), config, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}
