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

// RoomRepository captures the persistence operations needed by the service.
// DeleteRoom must remove the room's reservations in the same transaction.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) (Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	UpdateRoom(ctx context.Context, room Room) (Room, error)
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]Room, error)
}

// RoomService is the room registry: it owns room records and keeps the
// scheduling index's room table in step with them.
type RoomService struct {
	rooms       RoomRepository
	index       *scheduler.Index
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms RoomRepository, index *scheduler.Index, idGenerator func() string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, index, idGenerator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(rooms RoomRepository, index *scheduler.Index, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if index == nil {
		index = scheduler.NewIndex()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{rooms: rooms, index: index, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// Exists reports whether the room is registered.
func (s *RoomService) Exists(roomID string) bool {
	if s == nil {
		return false
	}
	return s.index.Exists(roomID)
}

// IsActive reports the room's active flag; it fails with ErrRoomNotFound for unknown rooms.
func (s *RoomService) IsActive(roomID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("RoomService is nil")
	}
	active, err := s.index.IsActive(roomID)
	if err != nil {
		return false, mapIndexError(err)
	}
	return active, nil
}

// CreateRoom validates input, persists a new room and registers it for scheduling.
func (s *RoomService) CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID, "active", room.Active).InfoContext(ctx, "room created")
	}()

	candidate := Room{
		Name:        strings.TrimSpace(params.Input.Name),
		Location:    strings.TrimSpace(params.Input.Location),
		Capacity:    cloneInt(params.Input.Capacity),
		Description: normalizeOptionalString(params.Input.Description),
		Active:      true,
	}
	if params.Input.Active != nil {
		candidate.Active = *params.Input.Active
	}

	if vErr := validateRoom(candidate); vErr.HasErrors() {
		err = vErr
		return
	}

	candidate.ID = s.idGenerator()
	candidate.CreatedAt = s.now().UTC()
	candidate.UpdatedAt = candidate.CreatedAt

	room, err = s.rooms.CreateRoom(ctx, candidate)
	if err != nil {
		err = mapRoomRepoError("create room", err)
		return
	}

	if err = s.index.AddRoom(room.ID, room.Active); err != nil {
		if errors.Is(err, scheduler.ErrRoomExists) {
			err = ErrAlreadyExists
		}
		return
	}
	return
}

// GetRoom returns a single room.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if s == nil {
		return Room{}, fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return Room{}, fmt.Errorf("room repository not configured")
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, mapRoomRepoError("get room", err)
	}
	return room, nil
}

// UpdateRoom applies a partial update. The room's lock is held for the
// duration so that active flag changes are ordered with reservation writes.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom",
		"principal_id", params.Principal.UserID,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("active", room.Active).InfoContext(ctx, "room updated")
	}()

	err = s.index.Mutate(params.RoomID, func(tx *scheduler.RoomTx) error {
		existing, getErr := s.rooms.GetRoom(ctx, params.RoomID)
		if getErr != nil {
			return mapRoomRepoError("get room", getErr)
		}

		updated := applyRoomPatch(existing, params.Patch)
		if vErr := validateRoom(updated); vErr.HasErrors() {
			return vErr
		}
		updated.UpdatedAt = s.now().UTC()

		persisted, updErr := s.rooms.UpdateRoom(ctx, updated)
		if updErr != nil {
			return mapRoomRepoError("update room", updErr)
		}

		tx.SetActive(persisted.Active)
		room = persisted
		return nil
	})
	err = mapIndexError(err)
	return
}

// ActivateRoom marks the room as bookable.
func (s *RoomService) ActivateRoom(ctx context.Context, principal Principal, roomID string) (Room, error) {
	active := true
	return s.UpdateRoom(ctx, UpdateRoomParams{Principal: principal, RoomID: roomID, Patch: RoomPatch{Active: &active}})
}

// DeactivateRoom stops new reservations for the room; existing ones are kept.
func (s *RoomService) DeactivateRoom(ctx context.Context, principal Principal, roomID string) (Room, error) {
	active := false
	return s.UpdateRoom(ctx, UpdateRoomParams{Principal: principal, RoomID: roomID, Patch: RoomPatch{Active: &active}})
}

// DeleteRoom removes the room and cascades to all of its reservations. The
// store transaction and the index drop happen under the room's exclusive lock,
// so concurrent writers observe either the intact room or ErrRoomNotFound.
func (s *RoomService) DeleteRoom(ctx context.Context, principal Principal, roomID string) (err error) {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return fmt.Errorf("room repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRoom",
		"principal_id", principal.UserID,
		"room_id", roomID,
	)

	var cascaded []string
	err = s.index.Mutate(roomID, func(tx *scheduler.RoomTx) error {
		if delErr := s.rooms.DeleteRoom(ctx, roomID); delErr != nil {
			return mapRoomRepoError("delete room", delErr)
		}
		cascaded = tx.Drop()
		return nil
	})
	if err != nil {
		err = mapIndexError(err)
		logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.With("cascaded_reservations", len(cascaded)).InfoContext(ctx, "room deleted")
	return nil
}

// ListRooms returns the rooms ordered by name.
func (s *RoomService) ListRooms(ctx context.Context, params ListRoomsParams) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRooms",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).InfoContext(ctx, "rooms listed")
	}()

	var raw []Room
	raw, err = s.rooms.ListRooms(ctx)
	if err != nil {
		err = unavailable("list rooms", err)
		return
	}

	rooms = make([]Room, 0, len(raw))
	for _, room := range raw {
		if params.Active != nil && room.Active != *params.Active {
			continue
		}
		rooms = append(rooms, room)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if strings.EqualFold(rooms[i].Name, rooms[j].Name) {
			return rooms[i].ID < rooms[j].ID
		}
		return strings.ToLower(rooms[i].Name) < strings.ToLower(rooms[j].Name)
	})

	return
}

func applyRoomPatch(room Room, patch RoomPatch) Room {
	if patch.Name != nil {
		room.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Location != nil {
		room.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.ClearCapacity {
		room.Capacity = nil
	} else if patch.Capacity != nil {
		room.Capacity = cloneInt(patch.Capacity)
	}
	if patch.Description != nil {
		room.Description = normalizeOptionalString(patch.Description)
	}
	if patch.Active != nil {
		room.Active = *patch.Active
	}
	return room
}

func validateRoom(room Room) *ValidationError {
	vErr := &ValidationError{}

	if room.Name == "" {
		vErr.add("name", "name is required")
	}
	if room.Location == "" {
		vErr.add("location", "location is required")
	}
	if room.Capacity != nil && *room.Capacity < 1 {
		vErr.add("capacity", "capacity must be positive")
	}

	return vErr
}

func mapRoomRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrRoomNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr = &ValidationError{}
		vErr.add("capacity", "capacity must be positive")
		return vErr
	}
	return unavailable(op, err)
}

func mapIndexError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, scheduler.ErrRoomNotFound) {
		return ErrRoomNotFound
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
