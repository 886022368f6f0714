package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/qualification"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.CreateBookingResult, error)
	Confirm(ctx context.Context, token string) (application.Booking, error)
	Cancel(ctx context.Context, bookingID string) error
	Reschedule(ctx context.Context, bookingID string, newInstant time.Time) (application.RescheduleResult, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, responder: newResponder(logger)}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.CreateBooking(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if !result.Qualified {
		h.responder.writeJSON(r.Context(), w, http.StatusOK, disqualifiedResponse{
			Qualified:   false,
			Reason:      result.Reason,
			RedirectURL: result.RedirectURL,
		})
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createBookingResponse{
		Qualified:  true,
		Booking:    toBookingDTO(result.Booking),
		ConfirmURL: result.ConfirmURL,
	})
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := r.URL.Query().Get("token")
	if strings.TrimSpace(token) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingToken)
		return
	}

	booking, err := h.service.Confirm(r.Context(), token)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}

	if err := h.service.Cancel(r.Context(), bookingID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Reschedule(r.Context(), bookingID, req.RequestedAt)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, createBookingResponse{
		Qualified:  true,
		Booking:    toBookingDTO(result.Booking),
		ConfirmURL: result.ConfirmURL,
	})
}

type guestRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type answerRequest struct {
	QuestionID string   `json:"question_id"`
	Values     []string `json:"values"`
}

type createBookingRequest struct {
	EventTemplateID string          `json:"event_template_id"`
	EventName       string          `json:"event_name"`
	Location        string          `json:"location"`
	Guest           guestRequest    `json:"guest"`
	Answers         []answerRequest `json:"answers"`
	RequestedAt     time.Time       `json:"requested_at"`
	Timezone        string          `json:"timezone"`
	DurationMinutes int             `json:"duration_minutes"`
}

func (req createBookingRequest) toParams() application.CreateBookingParams {
	answers := make([]qualification.Answer, 0, len(req.Answers))
	for _, answer := range req.Answers {
		answers = append(answers, qualification.Answer{
			QuestionID: answer.QuestionID,
			Values:     answer.Values,
		})
	}

	return application.CreateBookingParams{
		EventTemplateID: req.EventTemplateID,
		EventName:       req.EventName,
		Location:        req.Location,
		Guest: application.Guest{
			Name:  req.Guest.Name,
			Email: req.Guest.Email,
			Phone: req.Guest.Phone,
		},
		Answers:         answers,
		RequestedAt:     req.RequestedAt,
		Timezone:        req.Timezone,
		DurationMinutes: req.DurationMinutes,
	}
}

type rescheduleRequest struct {
	RequestedAt time.Time `json:"requested_at"`
}

type bookingDTO struct {
	ID              string    `json:"id"`
	EventTemplateID string    `json:"event_template_id"`
	EventName       string    `json:"event_name,omitempty"`
	Location        string    `json:"location,omitempty"`
	HostID          *string   `json:"host_id,omitempty"`
	GuestName       string    `json:"guest_name"`
	GuestEmail      string    `json:"guest_email"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Timezone        string    `json:"timezone,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

func toBookingDTO(booking application.Booking) bookingDTO {
	return bookingDTO{
		ID:              booking.ID,
		EventTemplateID: booking.EventTemplateID,
		EventName:       booking.EventName,
		Location:        booking.Location,
		HostID:          booking.HostID,
		GuestName:       booking.Guest.Name,
		GuestEmail:      booking.Guest.Email,
		ScheduledAt:     booking.ScheduledAt,
		Timezone:        booking.Timezone,
		DurationMinutes: booking.DurationMinutes,
		Status:          string(booking.Status),
	}
}

type createBookingResponse struct {
	Qualified  bool       `json:"qualified"`
	Booking    bookingDTO `json:"booking"`
	ConfirmURL string     `json:"confirm_url"`
}

type disqualifiedResponse struct {
	Qualified   bool   `json:"qualified"`
	Reason      string `json:"reason,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}
