package persistence

import "time"

// Host represents a staff member that can be assigned bookings. The engine
// reads hosts; mutation belongs to the admin surfaces.
type Host struct {
	ID                string
	DisplayName       string
	Email             string
	Priority          int
	Active            bool
	CalendarConnected bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AvailabilityWindow is one recurring weekly window during which a host
// accepts bookings. StartTime and EndTime are "HH:MM" wall-clock values in
// the window's timezone.
type AvailabilityWindow struct {
	ID        string
	HostID    string
	Weekday   time.Weekday
	StartTime string
	EndTime   string
	Timezone  string
}

// DisqualificationRuleSet is the qualification gate configured for an event
// template, together with its rules.
type DisqualificationRuleSet struct {
	ID              string
	EventTemplateID string
	Combinator      string
	Message         string
	RedirectURL     string
	Rules           []DisqualificationRule
}

// DisqualificationRule is one condition within a rule set.
type DisqualificationRule struct {
	ID            string
	RuleSetID     string
	FieldRef      string
	Operator      string
	ExpectedValue string
}

// Booking is a guest's claim on a host and an instant, moving through the
// confirmation lifecycle. ConfirmationTokenDigest holds a digest of the
// token, never the token itself.
type Booking struct {
	ID                      string
	EventTemplateID         string
	EventName               string
	Location                string
	HostID                  *string
	GuestName               string
	GuestEmail              string
	GuestPhone              string
	ScheduledAt             time.Time
	Timezone                string
	DurationMinutes         int
	Status                  string
	ConfirmationTokenDigest *string
	TokenExpiresAt          *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NotificationRule defines an offset-based reminder attached to an event
// template.
type NotificationRule struct {
	ID              string
	EventTemplateID string
	RecipientType   string
	Channel         string
	OffsetValue     int
	OffsetUnit      string
	OffsetDirection string
	Subject         string
	MessageTemplate string
	IsActive        bool
}

// NotificationDispatch records that a (booking, rule) pair has been
// dispatched. The unique constraint over the pair is what makes delivery
// at-most-once-marked under overlapping pollers.
type NotificationDispatch struct {
	BookingID    string
	RuleID       string
	DispatchedAt time.Time
}
