package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/room-scheduler/internal/persistence"
	"github.com/example/room-scheduler/internal/scheduler"
)

// maxOwnerAttempts bounds how often a write re-resolves the owning room after
// a concurrent move of the same reservation.
const maxOwnerAttempts = 3

var errOwnerChanged = errors.New("application: reservation changed rooms concurrently")

// ReservationRepository captures the persistence operations needed by the scheduler.
// Read operations return the reservation joined with its room's display fields.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	UpdateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) error
	GetReservation(ctx context.Context, id string) (ReservationView, error)
	ListReservations(ctx context.Context, filter ReservationRepositoryFilter) ([]ReservationView, error)
}

// ReservationService validates and commits reservation writes against the
// scheduling index. Each write runs under the affected room's exclusive lock
// and is persisted before the interval becomes visible in the index.
type ReservationService struct {
	reservations ReservationRepository
	index        *scheduler.Index
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewReservationService constructs a reservation service with the provided dependencies.
func NewReservationService(reservations ReservationRepository, index *scheduler.Index, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(reservations, index, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified logger.
func NewReservationServiceWithLogger(reservations ReservationRepository, index *scheduler.Index, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if index == nil {
		index = scheduler.NewIndex()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		reservations: reservations,
		index:        index,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// CreateReservation books a room for [Start, End).
//
// Checks run in a fixed order: interval, room existence and active flag,
// field validation, then overlap. Nothing is persisted or indexed unless every
// check passes.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	input := normalizeReservationInput(params.Input)

	logger := s.loggerWith(ctx, "CreateReservation",
		"principal_id", params.Principal.UserID,
		"room_id", input.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("reservation_id", reservation.ID).InfoContext(ctx, "reservation created")
	}()

	if !input.End.After(input.Start) {
		err = ErrInvalidInterval
		return
	}

	err = s.index.Mutate(input.RoomID, func(tx *scheduler.RoomTx) error {
		if !tx.Active() {
			return ErrRoomInactive
		}
		if vErr := validateReservation(input); vErr.HasErrors() {
			return vErr
		}
		if blocking, found := tx.FirstConflict(input.Start, input.End, ""); found {
			return &ConflictError{RoomID: input.RoomID, ReservationID: blocking.ReservationID}
		}

		now := s.now().UTC()
		candidate := Reservation{
			ID:          s.idGenerator(),
			RoomID:      input.RoomID,
			Responsible: input.Responsible,
			Start:       input.Start,
			End:         input.End,
			Description: input.Description,
			Catering:    input.Catering,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		persisted, repoErr := s.reservations.CreateReservation(ctx, candidate)
		if repoErr != nil {
			return mapReservationRepoError("create reservation", repoErr)
		}

		tx.Insert(scheduler.Interval{Start: persisted.Start, End: persisted.End, ReservationID: persisted.ID})
		reservation = persisted
		return nil
	})
	err = mapIndexError(err)
	return
}

// UpdateReservation applies a partial update. The overlap check ignores the
// reservation's own interval. When the room changes, both rooms are locked and
// the interval moves between them inside the same critical section.
func (s *ReservationService) UpdateReservation(ctx context.Context, params UpdateReservationParams) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil {
		err = fmt.Errorf("reservation repository not configured")
		return
	}

	id := strings.TrimSpace(params.ReservationID)
	logger := s.loggerWith(ctx, "UpdateReservation",
		"principal_id", params.Principal.UserID,
		"reservation_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", reservation.RoomID).InfoContext(ctx, "reservation updated")
	}()

	for attempt := 1; ; attempt++ {
		owner, ok := s.index.Owner(id)
		if !ok {
			err = ErrReservationNotFound
			return
		}
		target := owner
		if params.Patch.RoomID != nil {
			target = strings.TrimSpace(*params.Patch.RoomID)
		}

		err = s.index.MutatePair(owner, target, func(src, dst *scheduler.RoomTx) error {
			if !src.Contains(id) {
				return errOwnerChanged
			}

			current, getErr := s.reservations.GetReservation(ctx, id)
			if getErr != nil {
				return mapReservationRepoError("get reservation", getErr)
			}

			updated := applyReservationPatch(current.Reservation, params.Patch)
			updated.RoomID = target

			if !updated.End.After(updated.Start) {
				return ErrInvalidInterval
			}
			if !dst.Active() {
				return ErrRoomInactive
			}
			if vErr := validateReservation(toReservationInput(updated)); vErr.HasErrors() {
				return vErr
			}
			if blocking, found := dst.FirstConflict(updated.Start, updated.End, id); found {
				return &ConflictError{RoomID: target, ReservationID: blocking.ReservationID}
			}

			updated.UpdatedAt = s.now().UTC()
			persisted, updErr := s.reservations.UpdateReservation(ctx, updated)
			if updErr != nil {
				return mapReservationRepoError("update reservation", updErr)
			}

			src.Remove(id)
			dst.Insert(scheduler.Interval{Start: persisted.Start, End: persisted.End, ReservationID: persisted.ID})
			reservation = persisted
			return nil
		})

		if s.ownerMoved(err, owner) {
			if attempt < maxOwnerAttempts {
				continue
			}
			err = ErrConflict
			return
		}
		err = mapIndexError(err)
		return
	}
}

// DeleteReservation removes a reservation and releases its interval. A second
// delete of the same identifier fails with ErrReservationNotFound.
func (s *ReservationService) DeleteReservation(ctx context.Context, principal Principal, reservationID string) (err error) {
	if s == nil {
		return fmt.Errorf("ReservationService is nil")
	}
	if s.reservations == nil {
		return fmt.Errorf("reservation repository not configured")
	}

	id := strings.TrimSpace(reservationID)
	logger := s.loggerWith(ctx, "DeleteReservation",
		"principal_id", principal.UserID,
		"reservation_id", id,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete reservation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reservation deleted")
	}()

	for attempt := 1; ; attempt++ {
		owner, ok := s.index.Owner(id)
		if !ok {
			err = ErrReservationNotFound
			return
		}

		err = s.index.Mutate(owner, func(tx *scheduler.RoomTx) error {
			if !tx.Contains(id) {
				return errOwnerChanged
			}
			if delErr := s.reservations.DeleteReservation(ctx, id); delErr != nil {
				mapped := mapReservationRepoError("delete reservation", delErr)
				if errors.Is(mapped, ErrReservationNotFound) {
					tx.Remove(id)
				}
				return mapped
			}
			tx.Remove(id)
			return nil
		})

		if s.ownerMoved(err, owner) {
			if attempt < maxOwnerAttempts {
				continue
			}
			err = ErrConflict
			return
		}
		err = mapIndexError(err)
		return
	}
}

// GetReservation returns a single reservation with its room's display fields.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID string) (ReservationView, error) {
	if s == nil {
		return ReservationView{}, fmt.Errorf("ReservationService is nil")
	}
	if s.reservations == nil {
		return ReservationView{}, fmt.Errorf("reservation repository not configured")
	}

	view, err := s.reservations.GetReservation(ctx, strings.TrimSpace(reservationID))
	if err != nil {
		return ReservationView{}, mapReservationRepoError("get reservation", err)
	}
	return view, nil
}

// ListReservations returns reservations matching every supplied filter,
// ordered by start then identifier.
func (s *ReservationService) ListReservations(ctx context.Context, params ListReservationsParams) (views []ReservationView, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}
	if s.reservations == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListReservations",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list reservations", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(views)).InfoContext(ctx, "reservations listed")
	}()

	filter := ReservationRepositoryFilter{
		RoomID:      strings.TrimSpace(params.RoomID),
		Responsible: params.Responsible,
		From:        utcPtr(params.From),
		To:          utcPtr(params.To),
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		err = ErrInvalidInterval
		return
	}

	var raw []ReservationView
	raw, err = s.reservations.ListReservations(ctx, filter)
	if err != nil {
		err = unavailable("list reservations", err)
		return
	}

	views = make([]ReservationView, 0, len(raw))
	for _, view := range raw {
		if matchesReservationFilter(view.Reservation, filter) {
			views = append(views, view)
		}
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Start.Equal(views[j].Start) {
			return views[i].ID < views[j].ID
		}
		return views[i].Start.Before(views[j].Start)
	})
	return
}

func (s *ReservationService) ownerMoved(err error, owner string) bool {
	if errors.Is(err, errOwnerChanged) {
		return true
	}
	var notFound *scheduler.RoomNotFoundError
	return errors.As(err, &notFound) && notFound.RoomID == owner
}

func matchesReservationFilter(reservation Reservation, filter ReservationRepositoryFilter) bool {
	if filter.RoomID != "" && reservation.RoomID != filter.RoomID {
		return false
	}
	if filter.Responsible != "" && !strings.Contains(reservation.Responsible, filter.Responsible) {
		return false
	}
	if filter.From != nil && !reservation.End.After(*filter.From) {
		return false
	}
	if filter.To != nil && !reservation.Start.Before(*filter.To) {
		return false
	}
	return true
}

func normalizeReservationInput(input ReservationInput) ReservationInput {
	return ReservationInput{
		RoomID:      strings.TrimSpace(input.RoomID),
		Responsible: strings.TrimSpace(input.Responsible),
		Start:       input.Start.UTC(),
		End:         input.End.UTC(),
		Description: normalizeOptionalString(input.Description),
		Catering:    normalizeCatering(input.Catering),
	}
}

func normalizeCatering(c Catering) Catering {
	if !c.Required {
		return Catering{}
	}
	return Catering{
		Required:    true,
		Quantity:    cloneInt(c.Quantity),
		Description: normalizeOptionalString(c.Description),
	}
}

func applyReservationPatch(current Reservation, patch ReservationPatch) Reservation {
	updated := current
	if patch.Responsible != nil {
		updated.Responsible = strings.TrimSpace(*patch.Responsible)
	}
	if patch.Start != nil {
		updated.Start = patch.Start.UTC()
	}
	if patch.End != nil {
		updated.End = patch.End.UTC()
	}
	if patch.Description != nil {
		updated.Description = normalizeOptionalString(patch.Description)
	}

	catering := current.Catering
	if patch.Catering.Required != nil {
		catering.Required = *patch.Catering.Required
	}
	if patch.Catering.Quantity != nil {
		catering.Quantity = cloneInt(patch.Catering.Quantity)
	}
	if patch.Catering.Description != nil {
		catering.Description = patch.Catering.Description
	}
	updated.Catering = normalizeCatering(catering)
	return updated
}

func toReservationInput(r Reservation) ReservationInput {
	return ReservationInput{
		RoomID:      r.RoomID,
		Responsible: r.Responsible,
		Start:       r.Start,
		End:         r.End,
		Description: r.Description,
		Catering:    r.Catering,
	}
}

func validateReservation(input ReservationInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Responsible == "" {
		vErr.add("responsible", "responsible is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.Catering.Required && input.Catering.Quantity != nil && *input.Catering.Quantity < 1 {
		vErr.add("catering_quantity", "catering quantity must be positive")
	}

	return vErr
}

func mapReservationRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrReservationNotFound
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrRoomNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return unavailable(op, err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
