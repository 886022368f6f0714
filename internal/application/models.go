package application

import (
	"fmt"
	"time"

	"github.com/example/booking-engine/internal/qualification"
)

// BookingStatus labels a booking's position in the confirmation lifecycle.
type BookingStatus string

const (
	// StatusDraft is a booking assembled in memory, before its slot is claimed.
	StatusDraft BookingStatus = "draft"
	// StatusPendingConfirmation awaits the guest's confirmation token.
	StatusPendingConfirmation BookingStatus = "pending_confirmation"
	// StatusConfirmed is a kept booking.
	StatusConfirmed BookingStatus = "confirmed"
	// StatusCanceled is terminal; the slot is released.
	StatusCanceled BookingStatus = "canceled"
	// StatusRescheduled labels the transition a confirmed booking takes back
	// to pending confirmation with a new instant.
	StatusRescheduled BookingStatus = "rescheduled"
	// StatusExpired is terminal; the confirmation window lapsed unanswered.
	StatusExpired BookingStatus = "expired"
)

// ParseBookingStatus validates a stored status label.
func ParseBookingStatus(value string) (BookingStatus, error) {
	switch status := BookingStatus(value); status {
	case StatusDraft, StatusPendingConfirmation, StatusConfirmed, StatusCanceled, StatusRescheduled, StatusExpired:
		return status, nil
	default:
		return "", fmt.Errorf("application: unknown booking status %q", value)
	}
}

// Terminal reports whether no further lifecycle transition is permitted.
func (s BookingStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Host is a staff member eligible for attribution. Read-only to the engine.
type Host struct {
	ID                string
	DisplayName       string
	Email             string
	Priority          int
	Active            bool
	CalendarConnected bool
}

// Guest identifies the person booking a slot.
type Guest struct {
	Name  string
	Email string
	Phone string
}

// Booking is a guest's claim on a host and an instant. TokenDigest carries a
// digest of the confirmation token; the plaintext token is returned to the
// caller exactly once and never stored.
type Booking struct {
	ID              string
	EventTemplateID string
	EventName       string
	Location        string
	HostID          *string
	Guest           Guest
	ScheduledAt     time.Time
	Timezone        string
	DurationMinutes int
	Status          BookingStatus
	TokenDigest     *string
	TokenExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the booked interval length.
func (b Booking) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// CreateBookingParams wraps a guest's booking request.
type CreateBookingParams struct {
	EventTemplateID string
	EventName       string
	Location        string
	Guest           Guest
	Answers         []qualification.Answer
	RequestedAt     time.Time
	Timezone        string
	DurationMinutes int
}

// CreateBookingResult is either a created pending booking with its one-time
// confirmation token, or a modeled disqualification.
type CreateBookingResult struct {
	Qualified         bool
	Reason            string
	RedirectURL       string
	Booking           Booking
	ConfirmationToken string
	ConfirmURL        string
}

// RescheduleResult carries the re-pending booking and its fresh token.
type RescheduleResult struct {
	Booking           Booking
	ConfirmationToken string
	ConfirmURL        string
}

// RecipientType selects who a notification rule addresses.
type RecipientType string

const (
	RecipientGuest RecipientType = "guest"
	RecipientHost  RecipientType = "host"
)

// Channel selects the messaging adapter a notification routes through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
)

// OffsetUnit is the granularity of a reminder offset.
type OffsetUnit string

const (
	UnitMinutes OffsetUnit = "minutes"
	UnitHours   OffsetUnit = "hours"
	UnitDays    OffsetUnit = "days"
)

// OffsetDirection places the reminder before or after the event instant.
type OffsetDirection string

const (
	DirectionBefore OffsetDirection = "before"
	DirectionAfter  OffsetDirection = "after"
)

// NotificationRule is an offset-based reminder definition for an event
// template.
type NotificationRule struct {
	ID              string
	EventTemplateID string
	RecipientType   RecipientType
	Channel         Channel
	OffsetValue     int
	OffsetUnit      OffsetUnit
	OffsetDirection OffsetDirection
	Subject         string
	MessageTemplate string
	IsActive        bool
}

// Offset returns the rule's time delta relative to the event instant.
func (r NotificationRule) Offset() time.Duration {
	var unit time.Duration
	switch r.OffsetUnit {
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	default:
		unit = time.Minute
	}
	return time.Duration(r.OffsetValue) * unit
}

// FiringInstant computes when the rule fires for the given event instant.
func (r NotificationRule) FiringInstant(scheduledAt time.Time) time.Time {
	if r.OffsetDirection == DirectionAfter {
		return scheduledAt.Add(r.Offset())
	}
	return scheduledAt.Add(-r.Offset())
}

// ScheduledNotification is a due (booking, rule) pair awaiting dispatch.
type ScheduledNotification struct {
	Booking  Booking
	Rule     NotificationRule
	FiringAt time.Time
}

// Message is the payload handed to the messaging collaborator.
type Message struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// DispatchReport summarises one dispatch batch.
type DispatchReport struct {
	Due        int
	Dispatched int
	Failed     int
}
