package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/booking-engine/internal/application"
)

type reaperService interface {
	ReapExpired(ctx context.Context) (int, error)
}

type dispatcherService interface {
	DispatchDue(ctx context.Context, horizon time.Duration) (application.DispatchReport, error)
}

// JobsHandler exposes the periodic batch jobs as idempotent endpoints so an
// external scheduler can drive them.
type JobsHandler struct {
	reaper     reaperService
	dispatcher dispatcherService
	horizon    time.Duration
	responder  responder
}

func NewJobsHandler(reaper reaperService, dispatcher dispatcherService, horizon time.Duration, logger *slog.Logger) *JobsHandler {
	if horizon <= 0 {
		horizon = 5 * time.Minute
	}
	return &JobsHandler{
		reaper:     reaper,
		dispatcher: dispatcher,
		horizon:    horizon,
		responder:  newResponder(logger),
	}
}

func (h *JobsHandler) ReapExpired(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reaper == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	expired, err := h.reaper.ReapExpired(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, reapResponse{Expired: expired})
}

func (h *JobsHandler) DispatchNotifications(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.dispatcher == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	report, err := h.dispatcher.DispatchDue(r.Context(), h.horizon)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, dispatchResponse{
		Due:        report.Due,
		Dispatched: report.Dispatched,
		Failed:     report.Failed,
	})
}

type reapResponse struct {
	Expired int `json:"expired"`
}

type dispatchResponse struct {
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}
