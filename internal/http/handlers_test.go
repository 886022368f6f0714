package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
)

type stubBookingService struct {
	createResult application.CreateBookingResult
	createErr    error
	confirmed    application.Booking
	confirmErr   error
	cancelErr    error
	reschedule   application.RescheduleResult
	rescheduleErr error

	lastCreateParams application.CreateBookingParams
	lastToken        string
	lastCancelID     string
	lastRescheduleID string
	lastRescheduleAt time.Time
}

func (s *stubBookingService) CreateBooking(_ context.Context, params application.CreateBookingParams) (application.CreateBookingResult, error) {
	s.lastCreateParams = params
	return s.createResult, s.createErr
}

func (s *stubBookingService) Confirm(_ context.Context, token string) (application.Booking, error) {
	s.lastToken = token
	return s.confirmed, s.confirmErr
}

func (s *stubBookingService) Cancel(_ context.Context, bookingID string) error {
	s.lastCancelID = bookingID
	return s.cancelErr
}

func (s *stubBookingService) Reschedule(_ context.Context, bookingID string, newInstant time.Time) (application.RescheduleResult, error) {
	s.lastRescheduleID = bookingID
	s.lastRescheduleAt = newInstant
	return s.reschedule, s.rescheduleErr
}

func newTestRouter(service *stubBookingService) http.Handler {
	return NewRouter(RouterConfig{
		Bookings: NewBookingHandler(service, nil),
	})
}

func sampleBooking(status application.BookingStatus) application.Booking {
	hostID := "host-a"
	return application.Booking{
		ID:              "booking-1",
		EventTemplateID: "template-001",
		EventName:       "Démo produit",
		HostID:          &hostID,
		Guest:           application.Guest{Name: "Claire Martin", Email: "claire@example.com"},
		ScheduledAt:     time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC),
		Timezone:        "Europe/Paris",
		DurationMinutes: 30,
		Status:          status,
	}
}

func TestBookingHandlerCreate(t *testing.T) {
	t.Run("created booking responds 201 with confirm URL", func(t *testing.T) {
		service := &stubBookingService{createResult: application.CreateBookingResult{
			Qualified:  true,
			Booking:    sampleBooking(application.StatusPendingConfirmation),
			ConfirmURL: "https://booking.example.com/confirm?token=abc",
		}}
		router := newTestRouter(service)

		body := `{
			"event_template_id": "template-001",
			"guest": {"name": "Claire Martin", "email": "claire@example.com", "phone": "+33612345678"},
			"answers": [{"question_id": "q-phone", "values": ["+33612345678"]}],
			"requested_at": "2024-01-08T10:00:00Z",
			"timezone": "Europe/Paris",
			"duration_minutes": 30
		}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Qualified  bool   `json:"qualified"`
			ConfirmURL string `json:"confirm_url"`
			Booking    struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"booking"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if !resp.Qualified || resp.ConfirmURL == "" {
			t.Fatalf("response = %+v", resp)
		}
		if resp.Booking.Status != "pending_confirmation" {
			t.Fatalf("booking status = %q", resp.Booking.Status)
		}

		if service.lastCreateParams.EventTemplateID != "template-001" {
			t.Fatalf("template = %q", service.lastCreateParams.EventTemplateID)
		}
		if len(service.lastCreateParams.Answers) != 1 || service.lastCreateParams.Answers[0].QuestionID != "q-phone" {
			t.Fatalf("answers = %+v", service.lastCreateParams.Answers)
		}
	})

	t.Run("disqualified lead responds 200 with reason", func(t *testing.T) {
		service := &stubBookingService{createResult: application.CreateBookingResult{
			Qualified:   false,
			Reason:      "merci, mais non",
			RedirectURL: "https://example.com/sorry",
		}}
		router := newTestRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{"event_template_id":"template-001"}`)))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp disqualifiedResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Qualified || resp.Reason != "merci, mais non" {
			t.Fatalf("response = %+v", resp)
		}
	})

	t.Run("service sentinels map to status codes", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			want int
		}{
			{"no candidate", application.ErrNoCandidate, http.StatusConflict},
			{"slot unavailable", application.ErrSlotUnavailable, http.StatusConflict},
			{"not found", application.ErrNotFound, http.StatusNotFound},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				router := newTestRouter(&stubBookingService{createErr: tc.err})
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`)))
				if rec.Code != tc.want {
					t.Fatalf("status = %d, want %d", rec.Code, tc.want)
				}
			})
		}
	})

	t.Run("validation errors respond 422 with field details", func(t *testing.T) {
		vErr := &application.ValidationError{FieldErrors: map[string]string{"guest_email": "guest email is required"}}
		router := newTestRouter(&stubBookingService{createErr: vErr})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`)))

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rec.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Errors["guest_email"] == "" {
			t.Fatalf("response = %+v", resp)
		}
	})

	t.Run("malformed body responds 400", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader("{not json")))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("wrong method responds 405", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}

func TestBookingHandlerConfirm(t *testing.T) {
	t.Run("valid token responds 200 with the confirmed booking", func(t *testing.T) {
		service := &stubBookingService{confirmed: sampleBooking(application.StatusConfirmed)}
		router := newTestRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirm?token=abc123", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if service.lastToken != "abc123" {
			t.Fatalf("token = %q", service.lastToken)
		}
	})

	t.Run("expired token responds 410", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{confirmErr: application.ErrTokenExpired})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirm?token=stale", nil))
		if rec.Code != http.StatusGone {
			t.Fatalf("status = %d, want 410", rec.Code)
		}
	})

	t.Run("unknown token responds 404", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{confirmErr: application.ErrInvalidToken})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirm?token=bogus", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("missing token responds 400", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/confirm", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestBookingHandlerCancel(t *testing.T) {
	t.Run("cancel responds 204", func(t *testing.T) {
		service := &stubBookingService{}
		router := newTestRouter(service)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking-1/cancel", nil))

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if service.lastCancelID != "booking-1" {
			t.Fatalf("booking id = %q", service.lastCancelID)
		}
	})

	t.Run("invalid transition responds 409", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{cancelErr: application.ErrInvalidTransition})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking-1/cancel", nil))
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("unknown action responds 404", func(t *testing.T) {
		router := newTestRouter(&stubBookingService{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking-1/archive", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestBookingHandlerReschedule(t *testing.T) {
	service := &stubBookingService{reschedule: application.RescheduleResult{
		Booking:    sampleBooking(application.StatusPendingConfirmation),
		ConfirmURL: "https://booking.example.com/confirm?token=fresh",
	}}
	router := newTestRouter(service)

	rec := httptest.NewRecorder()
	body := `{"requested_at": "2024-01-09T15:00:00Z"}`
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking-1/reschedule", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if service.lastRescheduleID != "booking-1" {
		t.Fatalf("booking id = %q", service.lastRescheduleID)
	}
	want := time.Date(2024, time.January, 9, 15, 0, 0, 0, time.UTC)
	if !service.lastRescheduleAt.Equal(want) {
		t.Fatalf("requested at = %v, want %v", service.lastRescheduleAt, want)
	}
}

type stubJobs struct {
	expired int
	report  application.DispatchReport
}

func (s *stubJobs) ReapExpired(context.Context) (int, error) { return s.expired, nil }
func (s *stubJobs) DispatchDue(context.Context, time.Duration) (application.DispatchReport, error) {
	return s.report, nil
}

func TestJobsHandlers(t *testing.T) {
	jobs := &stubJobs{expired: 3, report: application.DispatchReport{Due: 2, Dispatched: 2}}
	router := NewRouter(RouterConfig{
		Jobs: NewJobsHandler(jobs, jobs, 5*time.Minute, nil),
	})

	t.Run("reap-expired reports the expired count", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/reap-expired", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp reapResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Expired != 3 {
			t.Fatalf("expired = %d, want 3", resp.Expired)
		}
	})

	t.Run("dispatch-notifications reports the batch outcome", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/dispatch-notifications", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp dispatchResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Dispatched != 2 {
			t.Fatalf("dispatched = %d, want 2", resp.Dispatched)
		}
	})

	t.Run("jobs require POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/reap-expired", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}
