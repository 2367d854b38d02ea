package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/room-scheduler/internal/persistence"
)

// ReservationRepository implements persistence.ReservationRepository using SQLite.
type ReservationRepository struct {
	pool *ConnectionPool
}

// NewReservationRepository creates a new SQLite reservation repository.
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

const reservationSelect = `
	SELECT r.id, r.room_id, r.responsible, r.start_at, r.end_at, r.description,
	       r.catering_required, r.catering_quantity, r.catering_description,
	       r.created_at, r.updated_at,
	       COALESCE(rm.name, ''), COALESCE(rm.location, '')
	FROM reservations r
	LEFT JOIN rooms rm ON rm.id = r.room_id`

// CreateReservation inserts a reservation. A missing room fails with
// persistence.ErrForeignKeyViolation.
func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation persistence.Reservation) error {
	if reservation.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO reservations (
			id, room_id, responsible, start_at, end_at, description,
			catering_required, catering_quantity, catering_description,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reservation.ID,
		reservation.RoomID,
		reservation.Responsible,
		formatTime(reservation.Start),
		formatTime(reservation.End),
		nullString(reservation.Description),
		reservation.CateringRequired,
		nullInt(reservation.CateringQuantity),
		nullString(reservation.CateringDescription),
		formatTime(reservation.CreatedAt),
		formatTime(reservation.UpdatedAt),
	)
	return mapError(err)
}

// UpdateReservation replaces the mutable fields of a reservation, including
// its room.
func (r *ReservationRepository) UpdateReservation(ctx context.Context, reservation persistence.Reservation) error {
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE reservations
		SET room_id = ?, responsible = ?, start_at = ?, end_at = ?, description = ?,
		    catering_required = ?, catering_quantity = ?, catering_description = ?,
		    updated_at = ?
		WHERE id = ?`,
		reservation.RoomID,
		reservation.Responsible,
		formatTime(reservation.Start),
		formatTime(reservation.End),
		nullString(reservation.Description),
		reservation.CateringRequired,
		nullInt(reservation.CateringQuantity),
		nullString(reservation.CateringDescription),
		formatTime(reservation.UpdatedAt),
		reservation.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return rowsAffected(result)
}

// GetReservation retrieves a reservation joined with its room.
func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	row := r.pool.db.QueryRowContext(ctx, reservationSelect+` WHERE r.id = ?`, id)
	return scanReservation(row)
}

// ListReservations returns matching reservations ordered by start then ID.
// Responsible matches as a case-sensitive substring.
func (r *ReservationRepository) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.RoomID != "" {
		conditions = append(conditions, "r.room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.Responsible != "" {
		conditions = append(conditions, "instr(r.responsible, ?) > 0")
		args = append(args, filter.Responsible)
	}
	if filter.From != nil {
		conditions = append(conditions, "r.end_at > ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "r.start_at < ?")
		args = append(args, formatTime(*filter.To))
	}

	query := reservationSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.start_at, r.id"

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	reservations := make([]persistence.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return reservations, nil
}

// DeleteReservation removes a reservation by ID.
func (r *ReservationRepository) DeleteReservation(ctx context.Context, id string) error {
	result, err := r.pool.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return rowsAffected(result)
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		res                                  persistence.Reservation
		description, cateringDescription     sql.NullString
		cateringQuantity                     sql.NullInt64
		startAt, endAt, createdAt, updatedAt string
	)
	if err := row.Scan(
		&res.ID, &res.RoomID, &res.Responsible, &startAt, &endAt, &description,
		&res.CateringRequired, &cateringQuantity, &cateringDescription,
		&createdAt, &updatedAt,
		&res.RoomName, &res.RoomLocation,
	); err != nil {
		return persistence.Reservation{}, mapError(err)
	}

	res.Description = stringPtr(description)
	res.CateringQuantity = intPtr(cateringQuantity)
	res.CateringDescription = stringPtr(cateringDescription)

	var err error
	for _, field := range []struct {
		column string
		value  string
		dest   *time.Time
	}{
		{"start_at", startAt, &res.Start},
		{"end_at", endAt, &res.End},
		{"created_at", createdAt, &res.CreatedAt},
		{"updated_at", updatedAt, &res.UpdatedAt},
	} {
		if *field.dest, err = parseTime(field.column, field.value); err != nil {
			return persistence.Reservation{}, err
		}
	}
	return res, nil
}
