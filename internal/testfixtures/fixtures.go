package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
)

var (
	hostCounter    uint64
	bookingCounter uint64
	ruleCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday so availability windows keyed by weekday line up.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Host fixtures -----------------------------

// HostFixture represents a deterministic host record that can be materialised
// for application or persistence tests.
type HostFixture struct {
	ID                string
	DisplayName       string
	Email             string
	Priority          int
	Active            bool
	CalendarConnected bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HostOption configures the generated host fixture.
type HostOption func(*HostFixture)

// NewHostFixture returns a deterministic host fixture with optional overrides.
func NewHostFixture(opts ...HostOption) HostFixture {
	idx := atomic.AddUint64(&hostCounter, 1)
	id := fmt.Sprintf("host-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := HostFixture{
		ID:                id,
		DisplayName:       fmt.Sprintf("Host %03d", idx),
		Email:             fmt.Sprintf("%s@example.com", id),
		Priority:          1,
		Active:            true,
		CalendarConnected: true,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithHostID overrides the generated host ID.
func WithHostID(id string) HostOption {
	return func(f *HostFixture) {
		f.ID = id
	}
}

// WithHostEmail overrides the generated email address.
func WithHostEmail(email string) HostOption {
	return func(f *HostFixture) {
		f.Email = email
	}
}

// WithHostPriority sets the attribution priority.
func WithHostPriority(priority int) HostOption {
	return func(f *HostFixture) {
		f.Priority = priority
	}
}

// WithHostActive sets the active flag.
func WithHostActive(active bool) HostOption {
	return func(f *HostFixture) {
		f.Active = active
	}
}

// WithHostCalendarConnected sets the calendar connection flag.
func WithHostCalendarConnected(connected bool) HostOption {
	return func(f *HostFixture) {
		f.CalendarConnected = connected
	}
}

// Application returns the fixture as an application.Host value.
func (f HostFixture) Application() application.Host {
	return application.Host{
		ID:                f.ID,
		DisplayName:       f.DisplayName,
		Email:             f.Email,
		Priority:          f.Priority,
		Active:            f.Active,
		CalendarConnected: f.CalendarConnected,
	}
}

// Persistence returns the fixture as a persistence.Host value.
func (f HostFixture) Persistence() persistence.Host {
	return persistence.Host{
		ID:                f.ID,
		DisplayName:       f.DisplayName,
		Email:             f.Email,
		Priority:          f.Priority,
		Active:            f.Active,
		CalendarConnected: f.CalendarConnected,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
	}
}

// ---------------------------- Booking fixtures ---------------------------

// BookingFixture represents a deterministic booking record.
type BookingFixture struct {
	ID              string
	EventTemplateID string
	EventName       string
	Location        string
	HostID          *string
	GuestName       string
	GuestEmail      string
	GuestPhone      string
	ScheduledAt     time.Time
	Timezone        string
	DurationMinutes int
	Status          application.BookingStatus
	TokenDigest     *string
	TokenExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a deterministic booking fixture with optional overrides.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	id := fmt.Sprintf("booking-%03d", idx)
	hostID := fmt.Sprintf("host-%03d", idx)
	scheduled := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := BookingFixture{
		ID:              id,
		EventTemplateID: "template-001",
		EventName:       fmt.Sprintf("Event %03d", idx),
		Location:        "Visio",
		HostID:          &hostID,
		GuestName:       fmt.Sprintf("Guest %03d", idx),
		GuestEmail:      fmt.Sprintf("guest-%03d@example.com", idx),
		GuestPhone:      fmt.Sprintf("+3361234%04d", idx),
		ScheduledAt:     scheduled,
		Timezone:        "Europe/Paris",
		DurationMinutes: 30,
		Status:          application.StatusConfirmed,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingTemplate sets the event template ID.
func WithBookingTemplate(templateID string) BookingOption {
	return func(f *BookingFixture) {
		f.EventTemplateID = templateID
	}
}

// WithBookingHost sets the attributed host ID.
func WithBookingHost(hostID string) BookingOption {
	return func(f *BookingFixture) {
		id := hostID
		f.HostID = &id
	}
}

// WithoutBookingHost clears the attributed host.
func WithoutBookingHost() BookingOption {
	return func(f *BookingFixture) {
		f.HostID = nil
	}
}

// WithBookingStatus sets the lifecycle status.
func WithBookingStatus(status application.BookingStatus) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// WithBookingScheduledAt sets the booked instant.
func WithBookingScheduledAt(t time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.ScheduledAt = t
	}
}

// WithBookingTimezone sets the guest-facing timezone.
func WithBookingTimezone(tz string) BookingOption {
	return func(f *BookingFixture) {
		f.Timezone = tz
	}
}

// WithBookingDuration sets the duration in minutes.
func WithBookingDuration(minutes int) BookingOption {
	return func(f *BookingFixture) {
		f.DurationMinutes = minutes
	}
}

// WithBookingGuest sets the guest contact fields.
func WithBookingGuest(name, email, phone string) BookingOption {
	return func(f *BookingFixture) {
		f.GuestName = name
		f.GuestEmail = email
		f.GuestPhone = phone
	}
}

// WithBookingToken sets the confirmation token digest and its expiry.
func WithBookingToken(digest string, expiresAt time.Time) BookingOption {
	return func(f *BookingFixture) {
		d := digest
		exp := expiresAt
		f.TokenDigest = &d
		f.TokenExpiresAt = &exp
	}
}

// WithoutBookingToken clears the confirmation token fields.
func WithoutBookingToken() BookingOption {
	return func(f *BookingFixture) {
		f.TokenDigest = nil
		f.TokenExpiresAt = nil
	}
}

// Application returns the fixture as an application.Booking value.
func (f BookingFixture) Application() application.Booking {
	return application.Booking{
		ID:              f.ID,
		EventTemplateID: f.EventTemplateID,
		EventName:       f.EventName,
		Location:        f.Location,
		HostID:          copyStringPtr(f.HostID),
		Guest: application.Guest{
			Name:  f.GuestName,
			Email: f.GuestEmail,
			Phone: f.GuestPhone,
		},
		ScheduledAt:     f.ScheduledAt,
		Timezone:        f.Timezone,
		DurationMinutes: f.DurationMinutes,
		Status:          f.Status,
		TokenDigest:     copyStringPtr(f.TokenDigest),
		TokenExpiresAt:  copyTimePtr(f.TokenExpiresAt),
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Booking value.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:                      f.ID,
		EventTemplateID:         f.EventTemplateID,
		EventName:               f.EventName,
		Location:                f.Location,
		HostID:                  copyStringPtr(f.HostID),
		GuestName:               f.GuestName,
		GuestEmail:              f.GuestEmail,
		GuestPhone:              f.GuestPhone,
		ScheduledAt:             f.ScheduledAt,
		Timezone:                f.Timezone,
		DurationMinutes:         f.DurationMinutes,
		Status:                  string(f.Status),
		ConfirmationTokenDigest: copyStringPtr(f.TokenDigest),
		TokenExpiresAt:          copyTimePtr(f.TokenExpiresAt),
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
}

// ----------------------- Notification rule fixtures ----------------------

// NotificationRuleFixture represents a deterministic reminder rule.
type NotificationRuleFixture struct {
	ID              string
	EventTemplateID string
	RecipientType   application.RecipientType
	Channel         application.Channel
	OffsetValue     int
	OffsetUnit      application.OffsetUnit
	OffsetDirection application.OffsetDirection
	Subject         string
	MessageTemplate string
	IsActive        bool
}

// NotificationRuleOption configures the generated rule fixture.
type NotificationRuleOption func(*NotificationRuleFixture)

// NewNotificationRuleFixture returns a deterministic rule fixture with optional overrides.
func NewNotificationRuleFixture(opts ...NotificationRuleOption) NotificationRuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	fixture := NotificationRuleFixture{
		ID:              fmt.Sprintf("rule-%03d", idx),
		EventTemplateID: "template-001",
		RecipientType:   application.RecipientGuest,
		Channel:         application.ChannelEmail,
		OffsetValue:     1,
		OffsetUnit:      application.UnitHours,
		OffsetDirection: application.DirectionBefore,
		Subject:         "Rappel",
		MessageTemplate: "Bonjour {{nom}}, rendez-vous le {{date}} à {{heure}}.",
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRuleID overrides the rule ID.
func WithRuleID(id string) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.ID = id
	}
}

// WithRuleTemplate sets the event template ID.
func WithRuleTemplate(templateID string) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.EventTemplateID = templateID
	}
}

// WithRuleRecipient sets the recipient type.
func WithRuleRecipient(recipient application.RecipientType) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.RecipientType = recipient
	}
}

// WithRuleChannel sets the messaging channel.
func WithRuleChannel(channel application.Channel) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.Channel = channel
	}
}

// WithRuleOffset sets the offset value, unit and direction.
func WithRuleOffset(value int, unit application.OffsetUnit, direction application.OffsetDirection) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.OffsetValue = value
		f.OffsetUnit = unit
		f.OffsetDirection = direction
	}
}

// WithRuleMessage sets the subject and message template.
func WithRuleMessage(subject, template string) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.Subject = subject
		f.MessageTemplate = template
	}
}

// WithRuleActive sets the active flag.
func WithRuleActive(active bool) NotificationRuleOption {
	return func(f *NotificationRuleFixture) {
		f.IsActive = active
	}
}

// Application returns the fixture as an application.NotificationRule value.
func (f NotificationRuleFixture) Application() application.NotificationRule {
	return application.NotificationRule{
		ID:              f.ID,
		EventTemplateID: f.EventTemplateID,
		RecipientType:   f.RecipientType,
		Channel:         f.Channel,
		OffsetValue:     f.OffsetValue,
		OffsetUnit:      f.OffsetUnit,
		OffsetDirection: f.OffsetDirection,
		Subject:         f.Subject,
		MessageTemplate: f.MessageTemplate,
		IsActive:        f.IsActive,
	}
}

// Persistence returns the fixture as a persistence.NotificationRule value.
func (f NotificationRuleFixture) Persistence() persistence.NotificationRule {
	return persistence.NotificationRule{
		ID:              f.ID,
		EventTemplateID: f.EventTemplateID,
		RecipientType:   string(f.RecipientType),
		Channel:         string(f.Channel),
		OffsetValue:     f.OffsetValue,
		OffsetUnit:      string(f.OffsetUnit),
		OffsetDirection: string(f.OffsetDirection),
		Subject:         f.Subject,
		MessageTemplate: f.MessageTemplate,
		IsActive:        f.IsActive,
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
