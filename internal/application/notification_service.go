package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// NotificationRuleSource exposes the active reminder rules.
type NotificationRuleSource interface {
	ListActiveRules(ctx context.Context) ([]NotificationRule, error)
}

// DispatchLedger records which (booking, rule) pairs have already fired.
// MarkDispatched must reject a second record for the same pair with
// persistence.ErrDuplicate so overlapping batch runs stay idempotent.
type DispatchLedger interface {
	DispatchedRuleIDs(ctx context.Context, bookingID string) (map[string]struct{}, error)
	MarkDispatched(ctx context.Context, bookingID, ruleID string, at time.Time) error
}

// NotificationService schedules and dispatches offset-based reminders for
// confirmed bookings. Delivery is at-least-once; the ledger deduplicates.
type NotificationService struct {
	rules     NotificationRuleSource
	bookings  BookingRepository
	hosts     HostDirectory
	ledger    DispatchLedger
	messenger Messenger
	now       func() time.Time
	logger    *slog.Logger
}

// NotificationServiceConfig wires the dependencies of a NotificationService.
type NotificationServiceConfig struct {
	Rules     NotificationRuleSource
	Bookings  BookingRepository
	Hosts     HostDirectory
	Ledger    DispatchLedger
	Messenger Messenger
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewNotificationService constructs a NotificationService, applying defaults
// for optional dependencies.
func NewNotificationService(cfg NotificationServiceConfig) *NotificationService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &NotificationService{
		rules:     cfg.Rules,
		bookings:  cfg.Bookings,
		hosts:     cfg.Hosts,
		ledger:    cfg.Ledger,
		messenger: cfg.Messenger,
		now:       cfg.Now,
		logger:    defaultLogger(cfg.Logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// DueNotifications returns every (booking, rule) pair whose firing instant
// falls inside [asOf, asOf+horizon] and has not yet been dispatched. Only
// confirmed bookings are considered; a canceled or expired booking never
// produces a reminder.
func (s *NotificationService) DueNotifications(ctx context.Context, asOf time.Time, horizon time.Duration) ([]ScheduledNotification, error) {
	if s == nil || s.rules == nil || s.bookings == nil || s.ledger == nil {
		return nil, fmt.Errorf("notification service not fully configured")
	}
	if horizon < 0 {
		return nil, fmt.Errorf("dispatch horizon must not be negative")
	}

	rules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	deadline := asOf.Add(horizon)
	bookingsByTemplate := make(map[string][]Booking)
	dispatchedByBooking := make(map[string]map[string]struct{})

	var due []ScheduledNotification
	for _, rule := range rules {
		bookings, ok := bookingsByTemplate[rule.EventTemplateID]
		if !ok {
			bookings, err = s.bookings.ListConfirmedForTemplate(ctx, rule.EventTemplateID)
			if err != nil {
				return nil, err
			}
			bookingsByTemplate[rule.EventTemplateID] = bookings
		}

		for _, booking := range bookings {
			firing := rule.FiringInstant(booking.ScheduledAt)
			if firing.Before(asOf) || firing.After(deadline) {
				continue
			}

			dispatched, ok := dispatchedByBooking[booking.ID]
			if !ok {
				dispatched, err = s.ledger.DispatchedRuleIDs(ctx, booking.ID)
				if err != nil {
					return nil, err
				}
				dispatchedByBooking[booking.ID] = dispatched
			}
			if _, done := dispatched[rule.ID]; done {
				continue
			}

			due = append(due, ScheduledNotification{Booking: booking, Rule: rule, FiringAt: firing})
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].FiringAt.Equal(due[j].FiringAt) {
			return due[i].FiringAt.Before(due[j].FiringAt)
		}
		return due[i].Booking.ID < due[j].Booking.ID
	})
	return due, nil
}

// Dispatch renders and sends one scheduled notification, then records it in
// the ledger. A concurrent batch winning the ledger race counts as success.
func (s *NotificationService) Dispatch(ctx context.Context, scheduled ScheduledNotification) error {
	if s == nil || s.ledger == nil || s.messenger == nil {
		return fmt.Errorf("notification service not fully configured")
	}

	recipient, err := s.recipientAddress(ctx, scheduled)
	if err != nil {
		return err
	}

	message := Message{
		Channel:   scheduled.Rule.Channel,
		Recipient: recipient,
		Subject:   scheduled.Rule.Subject,
		Body:      RenderTemplate(scheduled.Rule.MessageTemplate, scheduled.Booking),
	}

	if err := s.messenger.Send(ctx, message); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	if err := s.ledger.MarkDispatched(ctx, scheduled.Booking.ID, scheduled.Rule.ID, s.now()); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return nil
		}
		return err
	}
	return nil
}

// DispatchDue runs one batch: collect due pairs, dispatch each, keep going
// past individual failures so one broken adapter does not starve the rest.
func (s *NotificationService) DispatchDue(ctx context.Context, horizon time.Duration) (DispatchReport, error) {
	logger := s.loggerWith(ctx, "DispatchDue")

	due, err := s.DueNotifications(ctx, s.now(), horizon)
	if err != nil {
		logger.ErrorContext(ctx, "collecting due notifications failed", "error", err)
		return DispatchReport{}, err
	}

	report := DispatchReport{Due: len(due)}
	for _, scheduled := range due {
		if err := s.Dispatch(ctx, scheduled); err != nil {
			report.Failed++
			logger.ErrorContext(ctx, "notification dispatch failed",
				"booking_id", scheduled.Booking.ID,
				"rule_id", scheduled.Rule.ID,
				"error", err,
			)
			continue
		}
		report.Dispatched++
	}

	if report.Due > 0 {
		logger.InfoContext(ctx, "dispatch batch complete",
			"due", report.Due, "dispatched", report.Dispatched, "failed", report.Failed)
	}
	return report, nil
}

func (s *NotificationService) recipientAddress(ctx context.Context, scheduled ScheduledNotification) (string, error) {
	switch scheduled.Rule.RecipientType {
	case RecipientHost:
		if scheduled.Booking.HostID == nil {
			return "", fmt.Errorf("booking %s has no attributed host", scheduled.Booking.ID)
		}
		if s.hosts == nil {
			return "", fmt.Errorf("host directory not configured")
		}
		host, err := s.hosts.GetHost(ctx, *scheduled.Booking.HostID)
		if err != nil {
			return "", err
		}
		return host.Email, nil
	default:
		if scheduled.Rule.Channel == ChannelSMS {
			return scheduled.Booking.Guest.Phone, nil
		}
		return scheduled.Booking.Guest.Email, nil
	}
}

// RenderTemplate substitutes booking fields into a message template. Dates
// render day first and times on a 24 hour clock, in the booking's timezone.
func RenderTemplate(template string, booking Booking) string {
	location, err := time.LoadLocation(booking.Timezone)
	if err != nil || booking.Timezone == "" {
		location = time.UTC
	}
	local := booking.ScheduledAt.In(location)

	replacer := strings.NewReplacer(
		"{{nom}}", booking.Guest.Name,
		"{{date}}", local.Format("02/01/2006"),
		"{{heure}}", local.Format("15:04"),
		"{{event_name}}", booking.EventName,
		"{{lieu}}", booking.Location,
		"{{email}}", booking.Guest.Email,
	)
	return replacer.Replace(template)
}
