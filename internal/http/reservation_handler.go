package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-scheduler/internal/application"
)

type reservationService interface {
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (application.Reservation, error)
	UpdateReservation(ctx context.Context, params application.UpdateReservationParams) (application.Reservation, error)
	DeleteReservation(ctx context.Context, principal application.Principal, reservationID string) error
	GetReservation(ctx context.Context, reservationID string) (application.ReservationView, error)
	ListReservations(ctx context.Context, params application.ListReservationsParams) ([]application.ReservationView, error)
}

// ReservationHandler serves reservation booking, edits and listings.
type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

func (h *ReservationHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *ReservationHandler) reservationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "reservationID"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservation)
		return "", false
	}
	return id, true
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reservation request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.CreateReservation(r.Context(), application.CreateReservationParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toReservationDTO(application.ReservationView{Reservation: reservation}))
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(view))
}

func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req updateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "reservation_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reservation update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.UpdateReservation(r.Context(), application.UpdateReservationParams{
		Principal:     principal,
		ReservationID: id,
		Patch:         req.toPatch(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(application.ReservationView{Reservation: reservation}))
}

func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := h.reservationID(w, r)
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteReservation(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// List filters by room_id, responsible (substring) and the from/to window.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	from, err := parseTimeParam(query, "from")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTimeParam(query, "to")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	views, err := h.service.ListReservations(r.Context(), application.ListReservationsParams{
		Principal:   principal,
		RoomID:      query.Get("room_id"),
		Responsible: query.Get("responsible"),
		From:        from,
		To:          to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]reservationDTO, 0, len(views))
	for _, view := range views {
		out = append(out, toReservationDTO(view))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

type cateringRequest struct {
	Required    *bool   `json:"required"`
	Quantity    *int    `json:"quantity"`
	Description *string `json:"description"`
}

type createReservationRequest struct {
	RoomID      string           `json:"room_id"`
	Responsible string           `json:"responsible"`
	Start       *time.Time       `json:"start"`
	End         *time.Time       `json:"end"`
	Description *string          `json:"description"`
	Catering    *cateringRequest `json:"catering"`
}

func (r createReservationRequest) toInput() application.ReservationInput {
	input := application.ReservationInput{
		RoomID:      r.RoomID,
		Responsible: r.Responsible,
		Description: r.Description,
	}
	if r.Start != nil {
		input.Start = *r.Start
	}
	if r.End != nil {
		input.End = *r.End
	}
	if r.Catering != nil {
		input.Catering = application.Catering{
			Required:    r.Catering.Required != nil && *r.Catering.Required,
			Quantity:    r.Catering.Quantity,
			Description: r.Catering.Description,
		}
	}
	return input
}

type updateReservationRequest struct {
	RoomID      *string          `json:"room_id"`
	Responsible *string          `json:"responsible"`
	Start       *time.Time       `json:"start"`
	End         *time.Time       `json:"end"`
	Description *string          `json:"description"`
	Catering    *cateringRequest `json:"catering"`
}

func (r updateReservationRequest) toPatch() application.ReservationPatch {
	patch := application.ReservationPatch{
		RoomID:      r.RoomID,
		Responsible: r.Responsible,
		Start:       r.Start,
		End:         r.End,
		Description: r.Description,
	}
	if r.Catering != nil {
		patch.Catering = application.CateringPatch{
			Required:    r.Catering.Required,
			Quantity:    r.Catering.Quantity,
			Description: r.Catering.Description,
		}
	}
	return patch
}

type cateringDTO struct {
	Required    bool    `json:"required"`
	Quantity    *int    `json:"quantity,omitempty"`
	Description *string `json:"description,omitempty"`
}

type reservationDTO struct {
	ID           string      `json:"id"`
	RoomID       string      `json:"room_id"`
	RoomName     string      `json:"room_name,omitempty"`
	RoomLocation string      `json:"room_location,omitempty"`
	Responsible  string      `json:"responsible"`
	Start        string      `json:"start"`
	End          string      `json:"end"`
	Description  *string     `json:"description,omitempty"`
	Catering     cateringDTO `json:"catering"`
	CreatedAt    string      `json:"created_at"`
	UpdatedAt    string      `json:"updated_at"`
}

func toReservationDTO(view application.ReservationView) reservationDTO {
	return reservationDTO{
		ID:           view.ID,
		RoomID:       view.RoomID,
		RoomName:     view.RoomName,
		RoomLocation: view.RoomLocation,
		Responsible:  view.Responsible,
		Start:        formatTimestamp(view.Start),
		End:          formatTimestamp(view.End),
		Description:  view.Description,
		Catering: cateringDTO{
			Required:    view.Catering.Required,
			Quantity:    view.Catering.Quantity,
			Description: view.Catering.Description,
		},
		CreatedAt: formatTimestamp(view.CreatedAt),
		UpdatedAt: formatTimestamp(view.UpdatedAt),
	}
}
