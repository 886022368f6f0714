package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/attribution"
	"github.com/example/booking-engine/internal/availability"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/qualification"
)

// HostDirectory exposes the read-only host roster.
type HostDirectory interface {
	ListActiveHosts(ctx context.Context) ([]Host, error)
	GetHost(ctx context.Context, id string) (Host, error)
}

// AvailabilityProvider exposes the recurring weekly windows per host.
type AvailabilityProvider interface {
	WindowsForHosts(ctx context.Context, hostIDs []string) (map[string][]availability.Window, error)
}

// QualificationGate exposes the disqualification rule set per event template.
type QualificationGate interface {
	// RuleSetForTemplate reports found=false when the template carries no gate.
	RuleSetForTemplate(ctx context.Context, eventTemplateID string) (set qualification.RuleSet, found bool, err error)
}

// HostStats carries the round-robin inputs for one host.
type HostStats struct {
	RecentCount      int
	LastAttributedAt *time.Time
}

// BookingRepository captures the persistence interactions for bookings.
type BookingRepository interface {
	// ClaimBooking persists the booking, atomically claiming its host+instant
	// slot; a lost race surfaces as persistence.ErrDuplicate.
	ClaimBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	FindByTokenDigest(ctx context.Context, digest string) (Booking, error)
	// TransitionStatus applies booking's field values with a compare-and-set
	// guard on the previously stored status.
	TransitionStatus(ctx context.Context, booking Booking, from BookingStatus) (Booking, error)
	ExpirePending(ctx context.Context, now time.Time) (int, error)
	AttributionStats(ctx context.Context, hostIDs []string, since time.Time) (map[string]HostStats, error)
	ListConfirmedForTemplate(ctx context.Context, eventTemplateID string) ([]Booking, error)
}

// Messenger is the external messaging collaborator.
type Messenger interface {
	Send(ctx context.Context, message Message) error
}

// BookingService drives a booking from request through qualification,
// attribution and the confirmation lifecycle.
type BookingService struct {
	hosts          HostDirectory
	windows        AvailabilityProvider
	gates          QualificationGate
	bookings       BookingRepository
	messenger      Messenger
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	tokenTTL       time.Duration
	lookback       time.Duration
	publicBaseURL  string
	logger         *slog.Logger
}

// BookingServiceConfig wires the dependencies of a BookingService.
type BookingServiceConfig struct {
	Hosts          HostDirectory
	Windows        AvailabilityProvider
	Gates          QualificationGate
	Bookings       BookingRepository
	Messenger      Messenger
	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	TokenTTL       time.Duration
	Lookback       time.Duration
	PublicBaseURL  string
	Logger         *slog.Logger
}

// NewBookingService constructs a BookingService, applying defaults for
// optional dependencies.
func NewBookingService(cfg BookingServiceConfig) *BookingService {
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.TokenGenerator == nil {
		cfg.TokenGenerator = NewConfirmationToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	return &BookingService{
		hosts:          cfg.Hosts,
		windows:        cfg.Windows,
		gates:          cfg.Gates,
		bookings:       cfg.Bookings,
		messenger:      cfg.Messenger,
		idGenerator:    cfg.IDGenerator,
		tokenGenerator: cfg.TokenGenerator,
		now:            cfg.Now,
		tokenTTL:       cfg.TokenTTL,
		lookback:       cfg.Lookback,
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:         defaultLogger(cfg.Logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking gates the request through qualification, selects a host and
// claims the slot, leaving the booking pending the guest's confirmation.
// A disqualified lead is a modeled outcome, not an error.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (result CreateBookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking",
		"event_template_id", params.EventTemplateID,
		"requested_at", params.RequestedAt,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "booking creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if !result.Qualified {
			logger.InfoContext(ctx, "lead disqualified")
			return
		}
		logger.With("booking_id", result.Booking.ID, "host_id", result.Booking.HostID).
			InfoContext(ctx, "booking created pending confirmation")
	}()

	if vErr := validateCreateBooking(params); vErr.HasErrors() {
		err = vErr
		return
	}
	if params.DurationMinutes <= 0 {
		params.DurationMinutes = 30
	}

	if s.gates != nil {
		var (
			set   qualification.RuleSet
			found bool
		)
		set, found, err = s.gates.RuleSetForTemplate(ctx, params.EventTemplateID)
		if err != nil {
			return
		}
		if found {
			outcome := qualification.Evaluate(set, params.Answers)
			if !outcome.Qualified {
				result = CreateBookingResult{
					Qualified:   false,
					Reason:      outcome.Reason,
					RedirectURL: outcome.RedirectURL,
				}
				return
			}
		}
	}

	var candidates []string
	var roster map[string]Host
	candidates, roster, err = s.availableHosts(ctx, params.RequestedAt, time.Duration(params.DurationMinutes)*time.Minute)
	if err != nil {
		return
	}
	if len(candidates) == 0 {
		err = ErrNoCandidate
		return
	}

	var stats map[string]HostStats
	stats, err = s.bookings.AttributionStats(ctx, candidates, s.now().Add(-s.lookback))
	if err != nil {
		return
	}

	draft := Booking{
		ID:              s.idGenerator(),
		EventTemplateID: params.EventTemplateID,
		EventName:       strings.TrimSpace(params.EventName),
		Location:        strings.TrimSpace(params.Location),
		Guest:           trimGuest(params.Guest),
		ScheduledAt:     params.RequestedAt,
		Timezone:        params.Timezone,
		DurationMinutes: params.DurationMinutes,
		Status:          StatusDraft,
	}

	var claimed Booking
	var token string
	claimed, token, err = s.claimWithAttribution(ctx, draft, candidates, roster, stats)
	if err != nil {
		return
	}

	confirmURL := s.confirmURL(token)
	s.sendConfirmationRequest(ctx, logger, claimed, confirmURL)

	result = CreateBookingResult{
		Qualified:         true,
		Booking:           claimed,
		ConfirmationToken: token,
		ConfirmURL:        confirmURL,
	}
	return
}

// claimWithAttribution ranks the candidates and claims the slot, re-running
// attribution over the remaining pool when another request wins the race.
func (s *BookingService) claimWithAttribution(ctx context.Context, draft Booking, candidates []string, roster map[string]Host, stats map[string]HostStats) (Booking, string, error) {
	remaining := append([]string(nil), candidates...)

	for len(remaining) > 0 {
		pool := make([]attribution.Candidate, 0, len(remaining))
		for _, hostID := range remaining {
			candidate := attribution.Candidate{HostID: hostID, Priority: roster[hostID].Priority}
			if hostStats, ok := stats[hostID]; ok {
				candidate.RecentCount = hostStats.RecentCount
				candidate.LastAttributedAt = hostStats.LastAttributedAt
			}
			pool = append(pool, candidate)
		}

		winner, err := attribution.Attribute(pool)
		if err != nil {
			return Booking{}, "", ErrNoCandidate
		}

		booking, token := s.pendingBooking(draft, winner)
		claimed, err := s.bookings.ClaimBooking(ctx, booking)
		if err == nil {
			return claimed, token, nil
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			return Booking{}, "", err
		}

		remaining = removeHost(remaining, winner)
	}

	return Booking{}, "", ErrSlotUnavailable
}

// pendingBooking stamps the draft with a host, a fresh confirmation token
// and its expiry, moving it to pending confirmation.
func (s *BookingService) pendingBooking(draft Booking, hostID string) (Booking, string) {
	now := s.now()
	token := s.tokenGenerator()
	digest := TokenDigest(token)
	expiry := now.Add(s.tokenTTL)

	booking := draft
	booking.HostID = &hostID
	booking.Status = StatusPendingConfirmation
	booking.TokenDigest = &digest
	booking.TokenExpiresAt = &expiry
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return booking, token
}

// Confirm resolves the presented token and moves the booking to confirmed.
// An expired token expires the booking, freeing its slot.
func (s *BookingService) Confirm(ctx context.Context, token string) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "Confirm", "token_provided", strings.TrimSpace(token) != "")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "confirmation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking confirmed")
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrInvalidToken
		return
	}

	booking, err = s.bookings.FindByTokenDigest(ctx, TokenDigest(token))
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) || errors.Is(err, ErrNotFound) {
			err = ErrInvalidToken
		}
		booking = Booking{}
		return
	}

	if booking.Status != StatusPendingConfirmation {
		booking = Booking{}
		err = ErrInvalidTransition
		return
	}

	now := s.now()
	if booking.TokenExpiresAt != nil && now.After(*booking.TokenExpiresAt) {
		expired := booking
		expired.Status = StatusExpired
		expired.TokenDigest = nil
		expired.TokenExpiresAt = nil
		expired.UpdatedAt = now
		// The reaper may have raced us to the same transition; either way the
		// booking ends up expired.
		if _, terr := s.bookings.TransitionStatus(ctx, expired, StatusPendingConfirmation); terr != nil && !errors.Is(terr, persistence.ErrStaleStatus) {
			err = terr
			booking = Booking{}
			return
		}
		booking = Booking{}
		err = ErrTokenExpired
		return
	}

	confirmed := booking
	confirmed.Status = StatusConfirmed
	confirmed.TokenDigest = nil
	confirmed.TokenExpiresAt = nil
	confirmed.UpdatedAt = now

	booking, err = s.bookings.TransitionStatus(ctx, confirmed, StatusPendingConfirmation)
	if err != nil {
		booking = Booking{}
		err = mapBookingRepoError(err)
		return
	}
	return
}

// Cancel releases a pending or confirmed booking. Canceling an already
// canceled booking is a no-op.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "Cancel", "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "cancellation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking canceled")
	}()

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return mapBookingRepoError(err)
	}

	switch booking.Status {
	case StatusCanceled:
		return nil
	case StatusPendingConfirmation, StatusConfirmed:
	default:
		return ErrInvalidTransition
	}

	canceled := booking
	canceled.Status = StatusCanceled
	canceled.TokenDigest = nil
	canceled.TokenExpiresAt = nil
	canceled.UpdatedAt = s.now()

	if _, err = s.bookings.TransitionStatus(ctx, canceled, booking.Status); err != nil {
		return mapBookingRepoError(err)
	}
	return nil
}

// Reschedule moves a confirmed booking back to pending confirmation at a new
// instant with a fresh token. Qualification and availability are not re-run;
// the guest already passed both.
func (s *BookingService) Reschedule(ctx context.Context, bookingID string, newInstant time.Time) (result RescheduleResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "Reschedule", "booking_id", bookingID, "new_instant", newInstant)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reschedule failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking rescheduled pending confirmation")
	}()

	if newInstant.IsZero() {
		vErr := &ValidationError{}
		vErr.add("requested_at", "requested instant is required")
		err = vErr
		return
	}

	booking, gerr := s.bookings.GetBooking(ctx, bookingID)
	if gerr != nil {
		err = mapBookingRepoError(gerr)
		return
	}

	if booking.Status != StatusConfirmed {
		err = ErrInvalidTransition
		return
	}

	now := s.now()
	token := s.tokenGenerator()
	digest := TokenDigest(token)
	expiry := now.Add(s.tokenTTL)

	repending := booking
	repending.Status = StatusPendingConfirmation
	repending.ScheduledAt = newInstant
	repending.TokenDigest = &digest
	repending.TokenExpiresAt = &expiry
	repending.UpdatedAt = now

	updated, terr := s.bookings.TransitionStatus(ctx, repending, StatusConfirmed)
	if terr != nil {
		err = mapBookingRepoError(terr)
		return
	}

	confirmURL := s.confirmURL(token)
	s.sendConfirmationRequest(ctx, logger, updated, confirmURL)

	result = RescheduleResult{Booking: updated, ConfirmationToken: token, ConfirmURL: confirmURL}
	return
}

// ReapExpired expires every pending booking whose confirmation window has
// lapsed. Safe to invoke repeatedly and from overlapping batch runs.
func (s *BookingService) ReapExpired(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return 0, fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "ReapExpired")

	expired, err := s.bookings.ExpirePending(ctx, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "reaping expired bookings failed", "error", err, "error_kind", ErrorKind(err))
		return 0, err
	}
	if expired > 0 {
		logger.InfoContext(ctx, "expired pending bookings", "count", expired)
	}
	return expired, nil
}

func (s *BookingService) availableHosts(ctx context.Context, at time.Time, duration time.Duration) ([]string, map[string]Host, error) {
	if s.hosts == nil || s.windows == nil {
		return nil, nil, fmt.Errorf("host directory or availability provider not configured")
	}

	hosts, err := s.hosts.ListActiveHosts(ctx)
	if err != nil {
		return nil, nil, err
	}

	roster := make(map[string]Host, len(hosts))
	ids := make([]string, 0, len(hosts))
	for _, host := range hosts {
		roster[host.ID] = host
		ids = append(ids, host.ID)
	}

	windows, err := s.windows.WindowsForHosts(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	index := availability.NewIndex(windows)
	return index.CandidateHosts(ids, at, duration), roster, nil
}

func (s *BookingService) confirmURL(token string) string {
	return fmt.Sprintf("%s/confirm?token=%s", s.publicBaseURL, url.QueryEscape(token))
}

// sendConfirmationRequest notifies the guest that confirmation is required.
// Messaging failures are logged but never fail the booking; the guest can
// still be reached through the confirm URL surfaced to the caller.
func (s *BookingService) sendConfirmationRequest(ctx context.Context, logger *slog.Logger, booking Booking, confirmURL string) {
	if s.messenger == nil {
		return
	}

	body := fmt.Sprintf(
		"Bonjour %s,\n\nMerci de confirmer votre réservation « %s » : %s\n\nCe lien expire dans %d minutes.",
		booking.Guest.Name, booking.EventName, confirmURL, int(s.tokenTTL.Minutes()),
	)
	message := Message{
		Channel:   ChannelEmail,
		Recipient: booking.Guest.Email,
		Subject:   "Confirmez votre réservation",
		Body:      body,
	}

	if err := s.messenger.Send(ctx, message); err != nil {
		logger.ErrorContext(ctx, "confirmation request message failed", "error", err)
	}
}

func validateCreateBooking(params CreateBookingParams) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(params.EventTemplateID) == "" {
		vErr.add("event_template_id", "event template is required")
	}
	if strings.TrimSpace(params.Guest.Name) == "" {
		vErr.add("guest_name", "guest name is required")
	}
	if strings.TrimSpace(params.Guest.Email) == "" {
		vErr.add("guest_email", "guest email is required")
	}
	if params.RequestedAt.IsZero() {
		vErr.add("requested_at", "requested instant is required")
	}
	if params.DurationMinutes < 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}

	return vErr
}

func trimGuest(guest Guest) Guest {
	return Guest{
		Name:  strings.TrimSpace(guest.Name),
		Email: strings.TrimSpace(guest.Email),
		Phone: strings.TrimSpace(guest.Phone),
	}
}

func removeHost(hosts []string, target string) []string {
	out := hosts[:0]
	for _, host := range hosts {
		if host != target {
			out = append(out, host)
		}
	}
	return out
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrSlotUnavailable
	case errors.Is(err, persistence.ErrStaleStatus):
		return ErrInvalidTransition
	}
	return err
}
