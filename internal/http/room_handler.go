package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-scheduler/internal/application"
)

type roomService interface {
	CreateRoom(ctx context.Context, params application.CreateRoomParams) (application.Room, error)
	GetRoom(ctx context.Context, roomID string) (application.Room, error)
	UpdateRoom(ctx context.Context, params application.UpdateRoomParams) (application.Room, error)
	ActivateRoom(ctx context.Context, principal application.Principal, roomID string) (application.Room, error)
	DeactivateRoom(ctx context.Context, principal application.Principal, roomID string) (application.Room, error)
	DeleteRoom(ctx context.Context, principal application.Principal, roomID string) error
	ListRooms(ctx context.Context, params application.ListRoomsParams) ([]application.Room, error)
}

type availabilityService interface {
	IsAvailable(ctx context.Context, roomID string, start, end time.Time) (bool, error)
	BusyIntervals(ctx context.Context, roomID string, from, to time.Time) ([]application.BusyInterval, error)
}

// RoomHandler serves the room registry and per-room availability queries.
type RoomHandler struct {
	service      roomService
	availability availabilityService
	responder    responder
	logger       *slog.Logger
}

func NewRoomHandler(service roomService, availability availabilityService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, availability: availability, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *RoomHandler) roomID(w http.ResponseWriter, r *http.Request) (string, bool) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomID"))
	if roomID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRoomID)
		return "", false
	}
	return roomID, true
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), application.CreateRoomParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRoomDTO(room))
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	room, err := h.service.GetRoom(r.Context(), roomID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRoomDTO(room))
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req updateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "room_id", roomID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	room, err := h.service.UpdateRoom(r.Context(), application.UpdateRoomParams{
		Principal: principal,
		RoomID:    roomID,
		Patch:     req.toPatch(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRoomDTO(room))
}

func (h *RoomHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *RoomHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *RoomHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	if !h.ready(w) {
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var (
		room application.Room
		err  error
	)
	if active {
		room, err = h.service.ActivateRoom(r.Context(), principal, roomID)
	} else {
		room, err = h.service.DeactivateRoom(r.Context(), principal, roomID)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRoomDTO(room))
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteRoom(r.Context(), principal, roomID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params := application.ListRoomsParams{Principal: principal}
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("active must be true or false"))
			return
		}
		params.Active = &active
	}

	rooms, err := h.service.ListRooms(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRoomDTOs(rooms))
}

// Availability answers whether [start, end) is free in the room.
func (h *RoomHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.availability == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	start, end, ok := h.intervalParams(w, r, "start", "end")
	if !ok {
		return
	}

	available, err := h.availability.IsAvailable(r.Context(), roomID, start, end)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Availability", "room_id", roomID).DebugContext(r.Context(), "availability answered", "available", available)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{
		RoomID:    roomID,
		Start:     formatTimestamp(start),
		End:       formatTimestamp(end),
		Available: available,
	})
}

// Busy lists the committed intervals intersecting [from, to).
func (h *RoomHandler) Busy(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.availability == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roomID, ok := h.roomID(w, r)
	if !ok {
		return
	}

	from, to, ok := h.intervalParams(w, r, "from", "to")
	if !ok {
		return
	}

	intervals, err := h.availability.BusyIntervals(r.Context(), roomID, from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]busyIntervalDTO, 0, len(intervals))
	for _, interval := range intervals {
		out = append(out, busyIntervalDTO{
			ReservationID: interval.ReservationID,
			Start:         formatTimestamp(interval.Start),
			End:           formatTimestamp(interval.End),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *RoomHandler) intervalParams(w http.ResponseWriter, r *http.Request, startName, endName string) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	start, err := parseTimeParam(query, startName)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return time.Time{}, time.Time{}, false
	}
	end, err := parseTimeParam(query, endName)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return time.Time{}, time.Time{}, false
	}
	if start == nil || end == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New(startName+" and "+endName+" are required"))
		return time.Time{}, time.Time{}, false
	}
	return *start, *end, true
}

type createRoomRequest struct {
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	Capacity    *int    `json:"capacity"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (r createRoomRequest) toInput() application.RoomInput {
	return application.RoomInput{
		Name:        r.Name,
		Location:    r.Location,
		Capacity:    r.Capacity,
		Description: r.Description,
		Active:      r.Active,
	}
}

type updateRoomRequest struct {
	Name          *string `json:"name"`
	Location      *string `json:"location"`
	Capacity      *int    `json:"capacity"`
	ClearCapacity bool    `json:"clear_capacity"`
	Description   *string `json:"description"`
	Active        *bool   `json:"active"`
}

func (r updateRoomRequest) toPatch() application.RoomPatch {
	return application.RoomPatch{
		Name:          r.Name,
		Location:      r.Location,
		Capacity:      r.Capacity,
		ClearCapacity: r.ClearCapacity,
		Description:   r.Description,
		Active:        r.Active,
	}
}

type roomDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	Capacity    *int    `json:"capacity,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toRoomDTO(room application.Room) roomDTO {
	return roomDTO{
		ID:          room.ID,
		Name:        room.Name,
		Location:    room.Location,
		Capacity:    room.Capacity,
		Description: room.Description,
		Active:      room.Active,
		CreatedAt:   formatTimestamp(room.CreatedAt),
		UpdatedAt:   formatTimestamp(room.UpdatedAt),
	}
}

func toRoomDTOs(rooms []application.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}

type availabilityResponse struct {
	RoomID    string `json:"room_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type busyIntervalDTO struct {
	ReservationID string `json:"reservation_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
}
