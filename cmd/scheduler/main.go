package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/example/room-scheduler/internal/application"
	"github.com/example/room-scheduler/internal/config"
	httptransport "github.com/example/room-scheduler/internal/http"
	"github.com/example/room-scheduler/internal/logging"
	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/persistence/memory"
	"github.com/example/room-scheduler/internal/persistence/postgres"
	"github.com/example/room-scheduler/internal/persistence/sqlite"
	"github.com/example/room-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/room-scheduler/internal/scheduler"
)

const sessionPruneInterval = time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logOutput io.Writer) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger := logging.New(logOutput, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := newHandler(ctx, store, cfg.SessionTTL, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("scheduler API listening", "addr", server.Addr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		logger.Info("scheduler API stopped")
		return nil
	})
	g.Go(func() error {
		pruneSessions(gctx, store.Sessions(), sessionPruneInterval, logger)
		return nil
	})

	return g.Wait()
}

// openStore selects the persistence backend named by the configuration.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, postgres.DefaultConfig(cfg.PostgresDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// newHandler warms the scheduling index from store and wires the services
// into the HTTP router.
func newHandler(ctx context.Context, store persistence.Store, sessionTTL time.Duration, logger *slog.Logger) (http.Handler, error) {
	rooms := newRoomRepositoryAdapter(store.Rooms())
	reservations := newReservationRepositoryAdapter(store.Reservations())
	users := newUserRepositoryAdapter(store.Users())
	credentials := newCredentialStoreAdapter(store.Users())
	sessions := newSessionRepositoryAdapter(store.Sessions())

	index := scheduler.NewIndex()
	if err := application.LoadIndex(ctx, index, rooms, reservations, logger); err != nil {
		return nil, fmt.Errorf("load scheduling index: %w", err)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	roomService := application.NewRoomServiceWithLogger(rooms, index, idGenerator, now, logger)
	reservationService := application.NewReservationServiceWithLogger(reservations, index, idGenerator, now, logger)
	availabilityService := application.NewAvailabilityService(index, logger)
	userService := application.NewUserService(users, nil, idGenerator, now, logger)
	authService := application.NewAuthServiceWithLogger(credentials, sessions, nil, tokenGenerator, now, sessionTTL, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:         httptransport.NewAuthHandler(authService, logger),
		Users:        httptransport.NewUserHandler(userService, logger),
		Rooms:        httptransport.NewRoomHandler(roomService, availabilityService, logger),
		Reservations: httptransport.NewReservationHandler(reservationService, logger),
		Sessions:     authService,
		Logger:       logger,
		Health:       healthHandler(store, logger),
	}), nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(store persistence.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, `{"status":"ok"}`
		if p, ok := store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				logger.WarnContext(r.Context(), "storage health check failed", "error", err)
				status, body = http.StatusServiceUnavailable, `{"status":"unavailable"}`
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body+"\n")
	}
}

// pruneSessions deletes expired sessions every interval until ctx ends.
func pruneSessions(ctx context.Context, sessions persistence.SessionRepository, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sessions.DeleteExpiredSessions(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
				logger.Warn("failed to prune expired sessions", "error", err)
			}
		}
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
