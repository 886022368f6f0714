package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/availability"
	"github.com/example/booking-engine/internal/config"
	httptransport "github.com/example/booking-engine/internal/http"
	"github.com/example/booking-engine/internal/logging"
	"github.com/example/booking-engine/internal/messaging"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/sqlite"
	"github.com/example/booking-engine/internal/qualification"
)

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	hostRepo := sqlite.NewHostRepository(pool)
	availabilityRepo := sqlite.NewAvailabilityRepository(pool)
	ruleSetRepo := sqlite.NewRuleSetRepository(pool)
	bookingRepo := sqlite.NewBookingRepository(pool)
	notificationRepo := sqlite.NewNotificationRepository(pool)

	hosts := newHostDirectoryAdapter(hostRepo)
	windows := newAvailabilityAdapter(availabilityRepo, logger)
	gates := newQualificationGateAdapter(ruleSetRepo)
	bookings := newBookingRepositoryAdapter(bookingRepo)
	rules := newNotificationRuleSourceAdapter(notificationRepo)
	ledger := newDispatchLedgerAdapter(notificationRepo)

	messenger := messaging.NewTimeoutSender(messaging.NewLogSender(logger), cfg.SendTimeout)

	bookingService := application.NewBookingService(application.BookingServiceConfig{
		Hosts:         hosts,
		Windows:       windows,
		Gates:         gates,
		Bookings:      bookings,
		Messenger:     messenger,
		IDGenerator:   uuid.NewString,
		TokenTTL:      cfg.ConfirmationTTL,
		Lookback:      cfg.AttributionLookback,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})

	notificationService := application.NewNotificationService(application.NotificationServiceConfig{
		Rules:     rules,
		Bookings:  bookings,
		Hosts:     hosts,
		Ledger:    ledger,
		Messenger: messenger,
		Logger:    logger,
	})

	bookingHandler := httptransport.NewBookingHandler(bookingService, logger)
	jobsHandler := httptransport.NewJobsHandler(bookingService, notificationService, cfg.DispatchHorizon, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:   bookingHandler,
		Jobs:       jobsHandler,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

type hostDirectoryAdapter struct {
	repo persistence.HostRepository
}

func newHostDirectoryAdapter(repo persistence.HostRepository) *hostDirectoryAdapter {
	return &hostDirectoryAdapter{repo: repo}
}

func (a *hostDirectoryAdapter) ListActiveHosts(ctx context.Context) ([]application.Host, error) {
	models, err := a.repo.ListActiveHosts(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	hosts := make([]application.Host, 0, len(models))
	for _, model := range models {
		hosts = append(hosts, toApplicationHost(model))
	}
	return hosts, nil
}

func (a *hostDirectoryAdapter) GetHost(ctx context.Context, id string) (application.Host, error) {
	model, err := a.repo.GetHost(ctx, id)
	if err != nil {
		return application.Host{}, err
	}
	return toApplicationHost(model), nil
}

type availabilityAdapter struct {
	repo   persistence.AvailabilityRepository
	logger *slog.Logger
}

func newAvailabilityAdapter(repo persistence.AvailabilityRepository, logger *slog.Logger) *availabilityAdapter {
	return &availabilityAdapter{repo: repo, logger: logger}
}

// WindowsForHosts converts stored windows into their in-memory form. Rows
// with an unparseable time or timezone are skipped and logged; a single bad
// row must not take host selection down with it.
func (a *availabilityAdapter) WindowsForHosts(ctx context.Context, hostIDs []string) (map[string][]availability.Window, error) {
	models, err := a.repo.ListWindowsForHosts(ctx, hostIDs)
	if err != nil {
		return nil, err
	}

	windows := make(map[string][]availability.Window, len(hostIDs))
	for _, model := range models {
		start, err := availability.ParseTimeOfDay(model.StartTime)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping availability window", "window_id", model.ID, "error", err)
			continue
		}
		end, err := availability.ParseTimeOfDay(model.EndTime)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping availability window", "window_id", model.ID, "error", err)
			continue
		}
		location, err := time.LoadLocation(model.Timezone)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping availability window", "window_id", model.ID, "error", err)
			continue
		}
		windows[model.HostID] = append(windows[model.HostID], availability.Window{
			Weekday:  model.Weekday,
			Start:    start,
			End:      end,
			Location: location,
		})
	}
	return windows, nil
}

type qualificationGateAdapter struct {
	repo persistence.RuleSetRepository
}

func newQualificationGateAdapter(repo persistence.RuleSetRepository) *qualificationGateAdapter {
	return &qualificationGateAdapter{repo: repo}
}

func (a *qualificationGateAdapter) RuleSetForTemplate(ctx context.Context, eventTemplateID string) (qualification.RuleSet, bool, error) {
	model, err := a.repo.GetRuleSetForTemplate(ctx, eventTemplateID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return qualification.RuleSet{}, false, nil
		}
		return qualification.RuleSet{}, false, err
	}

	rules := make([]qualification.Rule, 0, len(model.Rules))
	for _, rule := range model.Rules {
		rules = append(rules, qualification.Rule{
			FieldRef:      rule.FieldRef,
			Operator:      qualification.Operator(rule.Operator),
			ExpectedValue: rule.ExpectedValue,
		})
	}
	return qualification.RuleSet{
		Combinator:  qualification.Combinator(model.Combinator),
		Rules:       rules,
		Message:     model.Message,
		RedirectURL: model.RedirectURL,
	}, true, nil
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) ClaimBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := a.repo.ClaimBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	stored, err := a.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored)
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored)
}

func (a *bookingRepositoryAdapter) FindByTokenDigest(ctx context.Context, digest string) (application.Booking, error) {
	stored, err := a.repo.GetBookingByTokenDigest(ctx, digest)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored)
}

func (a *bookingRepositoryAdapter) TransitionStatus(ctx context.Context, booking application.Booking, from application.BookingStatus) (application.Booking, error) {
	if err := a.repo.UpdateBookingStatus(ctx, toPersistenceBooking(booking), string(from)); err != nil {
		return application.Booking{}, err
	}
	stored, err := a.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored)
}

func (a *bookingRepositoryAdapter) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	return a.repo.ExpirePending(ctx, now, string(application.StatusExpired))
}

func (a *bookingRepositoryAdapter) AttributionStats(ctx context.Context, hostIDs []string, since time.Time) (map[string]application.HostStats, error) {
	models, err := a.repo.AttributionStatsForHosts(ctx, hostIDs, since)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]application.HostStats, len(models))
	for hostID, model := range models {
		stats[hostID] = application.HostStats{
			RecentCount:      model.RecentCount,
			LastAttributedAt: cloneTime(model.LastAttributedAt),
		}
	}
	return stats, nil
}

func (a *bookingRepositoryAdapter) ListConfirmedForTemplate(ctx context.Context, eventTemplateID string) ([]application.Booking, error) {
	models, err := a.repo.ListBookingsForTemplate(ctx, eventTemplateID, string(application.StatusConfirmed))
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	bookings := make([]application.Booking, 0, len(models))
	for _, model := range models {
		booking, err := toApplicationBooking(model)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, nil
}

type notificationRuleSourceAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationRuleSourceAdapter(repo persistence.NotificationRepository) *notificationRuleSourceAdapter {
	return &notificationRuleSourceAdapter{repo: repo}
}

func (a *notificationRuleSourceAdapter) ListActiveRules(ctx context.Context) ([]application.NotificationRule, error) {
	models, err := a.repo.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	rules := make([]application.NotificationRule, 0, len(models))
	for _, model := range models {
		rules = append(rules, application.NotificationRule{
			ID:              model.ID,
			EventTemplateID: model.EventTemplateID,
			RecipientType:   application.RecipientType(model.RecipientType),
			Channel:         application.Channel(model.Channel),
			OffsetValue:     model.OffsetValue,
			OffsetUnit:      application.OffsetUnit(model.OffsetUnit),
			OffsetDirection: application.OffsetDirection(model.OffsetDirection),
			Subject:         model.Subject,
			MessageTemplate: model.MessageTemplate,
			IsActive:        model.IsActive,
		})
	}
	return rules, nil
}

type dispatchLedgerAdapter struct {
	repo persistence.NotificationRepository
}

func newDispatchLedgerAdapter(repo persistence.NotificationRepository) *dispatchLedgerAdapter {
	return &dispatchLedgerAdapter{repo: repo}
}

func (a *dispatchLedgerAdapter) DispatchedRuleIDs(ctx context.Context, bookingID string) (map[string]struct{}, error) {
	ids, err := a.repo.ListDispatchedRuleIDs(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	dispatched := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		dispatched[id] = struct{}{}
	}
	return dispatched, nil
}

func (a *dispatchLedgerAdapter) MarkDispatched(ctx context.Context, bookingID, ruleID string, at time.Time) error {
	return a.repo.MarkDispatched(ctx, persistence.NotificationDispatch{
		BookingID:    bookingID,
		RuleID:       ruleID,
		DispatchedAt: at,
	})
}

func toApplicationHost(model persistence.Host) application.Host {
	return application.Host{
		ID:                model.ID,
		DisplayName:       model.DisplayName,
		Email:             model.Email,
		Priority:          model.Priority,
		Active:            model.Active,
		CalendarConnected: model.CalendarConnected,
	}
}

func toApplicationBooking(model persistence.Booking) (application.Booking, error) {
	status, err := application.ParseBookingStatus(model.Status)
	if err != nil {
		return application.Booking{}, err
	}
	return application.Booking{
		ID:              model.ID,
		EventTemplateID: model.EventTemplateID,
		EventName:       model.EventName,
		Location:        model.Location,
		HostID:          cloneString(model.HostID),
		Guest: application.Guest{
			Name:  model.GuestName,
			Email: model.GuestEmail,
			Phone: model.GuestPhone,
		},
		ScheduledAt:     model.ScheduledAt,
		Timezone:        model.Timezone,
		DurationMinutes: model.DurationMinutes,
		Status:          status,
		TokenDigest:     cloneString(model.ConfirmationTokenDigest),
		TokenExpiresAt:  cloneTime(model.TokenExpiresAt),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}, nil
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:                      booking.ID,
		EventTemplateID:         booking.EventTemplateID,
		EventName:               booking.EventName,
		Location:                booking.Location,
		HostID:                  cloneString(booking.HostID),
		GuestName:               booking.Guest.Name,
		GuestEmail:              booking.Guest.Email,
		GuestPhone:              booking.Guest.Phone,
		ScheduledAt:             booking.ScheduledAt,
		Timezone:                booking.Timezone,
		DurationMinutes:         booking.DurationMinutes,
		Status:                  string(booking.Status),
		ConfirmationTokenDigest: cloneString(booking.TokenDigest),
		TokenExpiresAt:          cloneTime(booking.TokenExpiresAt),
		CreatedAt:               booking.CreatedAt,
		UpdatedAt:               booking.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
