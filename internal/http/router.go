package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires handlers and the session validator into the router.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Rooms        *RoomHandler
	Reservations *ReservationHandler
	Sessions     SessionValidator
	Logger       *slog.Logger
	Health       http.HandlerFunc
}

// NewRouter builds the chi router serving the scheduler API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	health := cfg.Health
	if health == nil {
		health = func(w http.ResponseWriter, r *http.Request) {
			newResponder(logger).writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}
	r.Get("/health", health)

	r.Route("/api", func(r chi.Router) {
		if cfg.Users != nil {
			r.Post("/auth/register", cfg.Users.Register)
		}
		if cfg.Auth != nil {
			r.Post("/auth/login", cfg.Auth.Login)
			r.Post("/auth/refresh", cfg.Auth.Refresh)
		}

		r.Group(func(r chi.Router) {
			if cfg.Sessions != nil {
				r.Use(RequireSession(cfg.Sessions, logger))
			}

			if cfg.Auth != nil {
				r.Post("/auth/logout", cfg.Auth.Logout)
			}
			if cfg.Users != nil {
				r.Get("/auth/me", cfg.Users.Me)
			}

			if cfg.Rooms != nil {
				r.Route("/rooms", func(r chi.Router) {
					r.Get("/", cfg.Rooms.List)
					r.Post("/", cfg.Rooms.Create)
					r.Route("/{roomID}", func(r chi.Router) {
						r.Get("/", cfg.Rooms.Get)
						r.Put("/", cfg.Rooms.Update)
						r.Delete("/", cfg.Rooms.Delete)
						r.Post("/activate", cfg.Rooms.Activate)
						r.Post("/deactivate", cfg.Rooms.Deactivate)
						r.Get("/availability", cfg.Rooms.Availability)
						r.Get("/busy", cfg.Rooms.Busy)
					})
				})
			}

			if cfg.Reservations != nil {
				r.Route("/reservations", func(r chi.Router) {
					r.Get("/", cfg.Reservations.List)
					r.Post("/", cfg.Reservations.Create)
					r.Route("/{reservationID}", func(r chi.Router) {
						r.Get("/", cfg.Reservations.Get)
						r.Put("/", cfg.Reservations.Update)
						r.Delete("/", cfg.Reservations.Delete)
					})
				})
			}
		})
	})

	return r
}
