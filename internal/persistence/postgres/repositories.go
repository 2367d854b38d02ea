package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/room-scheduler/internal/persistence"
)

// UserRepository implements persistence.UserRepository.
type UserRepository struct {
	db *pgxpool.Pool
}

const userColumns = `id, email, display_name, password_hash, disabled, created_at, updated_at`

// CreateUser inserts a user. Emails are unique on lower(email).
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, strings.TrimSpace(user.Email), user.DisplayName, user.PasswordHash, user.Disabled,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	return mapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func scanUser(row pgx.Row) (persistence.User, error) {
	var u persistence.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Disabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// RoomRepository implements persistence.RoomRepository.
type RoomRepository struct {
	db *pgxpool.Pool
}

const roomColumns = `id, name, location, capacity, description, active, created_at, updated_at`

// CreateRoom inserts a room.
func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		room.ID, room.Name, room.Location, room.Capacity, room.Description, room.Active,
		room.CreatedAt.UTC(), room.UpdatedAt.UTC(),
	)
	return mapError(err)
}

// UpdateRoom replaces the mutable fields of a room.
func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE rooms
		 SET name = $1, location = $2, capacity = $3, description = $4, active = $5, updated_at = $6
		 WHERE id = $7`,
		room.Name, room.Location, room.Capacity, room.Description, room.Active, room.UpdatedAt.UTC(), room.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return affected(tag)
}

// GetRoom retrieves a room by ID.
func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	return scanRoom(r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

// ListRooms returns all rooms ordered by name then ID.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY name COLLATE "C", id COLLATE "C"`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	rooms := make([]persistence.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, mapError(rows.Err())
}

// DeleteRoom removes a room and its reservations in one transaction.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE room_id = $1`, id); err != nil {
			return mapError(fmt.Errorf("delete reservations of room %s: %w", id, err))
		}
		tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		if err != nil {
			return mapError(err)
		}
		return affected(tag)
	})
}

func scanRoom(row pgx.Row) (persistence.Room, error) {
	var room persistence.Room
	if err := row.Scan(&room.ID, &room.Name, &room.Location, &room.Capacity, &room.Description,
		&room.Active, &room.CreatedAt, &room.UpdatedAt); err != nil {
		return persistence.Room{}, mapError(err)
	}
	room.CreatedAt = room.CreatedAt.UTC()
	room.UpdatedAt = room.UpdatedAt.UTC()
	return room, nil
}

// ReservationRepository implements persistence.ReservationRepository.
type ReservationRepository struct {
	db *pgxpool.Pool
}

const reservationSelect = `
	SELECT r.id, r.room_id, r.responsible, r.start_at, r.end_at, r.description,
	       r.catering_required, r.catering_quantity, r.catering_description,
	       r.created_at, r.updated_at,
	       COALESCE(rm.name, ''), COALESCE(rm.location, '')
	FROM reservations r
	LEFT JOIN rooms rm ON rm.id = r.room_id`

// CreateReservation inserts a reservation for an existing room.
func (r *ReservationRepository) CreateReservation(ctx context.Context, res persistence.Reservation) error {
	if res.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO reservations (
			id, room_id, responsible, start_at, end_at, description,
			catering_required, catering_quantity, catering_description,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, res.RoomID, res.Responsible, res.Start.UTC(), res.End.UTC(), res.Description,
		res.CateringRequired, res.CateringQuantity, res.CateringDescription,
		res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	return mapError(err)
}

// UpdateReservation replaces the mutable fields of a reservation.
func (r *ReservationRepository) UpdateReservation(ctx context.Context, res persistence.Reservation) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations
		 SET room_id = $1, responsible = $2, start_at = $3, end_at = $4, description = $5,
		     catering_required = $6, catering_quantity = $7, catering_description = $8, updated_at = $9
		 WHERE id = $10`,
		res.RoomID, res.Responsible, res.Start.UTC(), res.End.UTC(), res.Description,
		res.CateringRequired, res.CateringQuantity, res.CateringDescription, res.UpdatedAt.UTC(),
		res.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return affected(tag)
}

// GetReservation retrieves a reservation joined with its room.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx, reservationSelect+` WHERE r.id = $1`, id))
}

// ListReservations returns matching reservations ordered by start then ID.
func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.RoomID != "" {
		conditions = append(conditions, "r.room_id = "+arg(filter.RoomID))
	}
	if filter.Responsible != "" {
		conditions = append(conditions, "strpos(r.responsible, "+arg(filter.Responsible)+") > 0")
	}
	if filter.From != nil {
		conditions = append(conditions, "r.end_at > "+arg(filter.From.UTC()))
	}
	if filter.To != nil {
		conditions = append(conditions, "r.start_at < "+arg(filter.To.UTC()))
	}

	query := reservationSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY r.start_at, r.id COLLATE "C"`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	reservations := make([]persistence.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, mapError(rows.Err())
}

// DeleteReservation removes a reservation by ID.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return affected(tag)
}

func scanReservation(row pgx.Row) (persistence.Reservation, error) {
	var res persistence.Reservation
	if err := row.Scan(
		&res.ID, &res.RoomID, &res.Responsible, &res.Start, &res.End, &res.Description,
		&res.CateringRequired, &res.CateringQuantity, &res.CateringDescription,
		&res.CreatedAt, &res.UpdatedAt,
		&res.RoomName, &res.RoomLocation,
	); err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	res.Start = res.Start.UTC()
	res.End = res.End.UTC()
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return res, nil
}

// SessionRepository implements persistence.SessionRepository.
type SessionRepository struct {
	db *pgxpool.Pool
}

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// CreateSession stores a session for an existing user.
func (r *SessionRepository) CreateSession(ctx context.Context, s persistence.Session) (persistence.Session, error) {
	s.Token = strings.TrimSpace(s.Token)
	if s.ID == "" || s.UserID == "" || s.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	return scanSession(r.db.QueryRow(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+sessionColumns,
		s.ID, s.UserID, s.Token, s.Fingerprint, s.ExpiresAt.UTC(), utcPtr(s.RevokedAt),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	))
}

// GetSession retrieves a session by token.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token))
}

// UpdateSession updates the mutable fields of a session.
func (r *SessionRepository) UpdateSession(ctx context.Context, s persistence.Session) (persistence.Session, error) {
	if s.ID == "" || strings.TrimSpace(s.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	return scanSession(r.db.QueryRow(ctx,
		`UPDATE sessions
		 SET token = $1, fingerprint = $2, expires_at = $3, revoked_at = $4, updated_at = $5
		 WHERE id = $6
		 RETURNING `+sessionColumns,
		strings.TrimSpace(s.Token), s.Fingerprint, s.ExpiresAt.UTC(), utcPtr(s.RevokedAt), s.UpdatedAt.UTC(), s.ID,
	))
}

// RevokeSession marks the session with the given token as revoked.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	return scanSession(r.db.QueryRow(ctx,
		`UPDATE sessions SET revoked_at = $1, updated_at = $1 WHERE token = $2 RETURNING `+sessionColumns,
		revokedAt.UTC(), strings.TrimSpace(token),
	))
}

// DeleteExpiredSessions drops sessions whose expiry is at or before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, reference.UTC())
	return mapError(err)
}

func scanSession(row pgx.Row) (persistence.Session, error) {
	var s persistence.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.Token, &s.Fingerprint, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return persistence.Session{}, mapError(err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.RevokedAt = utcPtr(s.RevokedAt)
	return s, nil
}
