package persistence

import (
	"context"
	"time"
)

// HostRepository exposes the read-only host directory consumed by the engine.
type HostRepository interface {
	GetHost(ctx context.Context, id string) (Host, error)
	ListActiveHosts(ctx context.Context) ([]Host, error)
	CreateHost(ctx context.Context, host Host) error
}

// AvailabilityRepository exposes the recurring weekly windows per host.
type AvailabilityRepository interface {
	ListWindowsForHosts(ctx context.Context, hostIDs []string) ([]AvailabilityWindow, error)
	CreateWindow(ctx context.Context, window AvailabilityWindow) error
}

// RuleSetRepository exposes the qualification gate per event template.
type RuleSetRepository interface {
	// GetRuleSetForTemplate returns ErrNotFound when the template has no
	// qualification gate configured.
	GetRuleSetForTemplate(ctx context.Context, eventTemplateID string) (DisqualificationRuleSet, error)
	CreateRuleSet(ctx context.Context, set DisqualificationRuleSet) error
}

// AttributionStats captures the round-robin inputs for one host.
type AttributionStats struct {
	RecentCount      int
	LastAttributedAt *time.Time
}

// BookingRepository owns booking rows, the atomic slot claim and the
// compare-and-set status updates the lifecycle relies on.
type BookingRepository interface {
	// ClaimBooking inserts the booking, atomically claiming its host+instant
	// slot. A lost race surfaces as ErrDuplicate.
	ClaimBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	// GetBookingByTokenDigest returns ErrNotFound when no pending booking
	// holds the digest.
	GetBookingByTokenDigest(ctx context.Context, digest string) (Booking, error)
	// UpdateBookingStatus applies a compare-and-set transition: the update
	// only succeeds while the stored status equals expectedStatus, otherwise
	// ErrStaleStatus is returned. Token fields and scheduledAt are written
	// from the supplied booking value.
	UpdateBookingStatus(ctx context.Context, booking Booking, expectedStatus string) error
	// ExpirePending transitions every pending booking whose token expiry has
	// passed to the expired status, clearing token state. Returns the number
	// of rows transitioned; repeated calls are no-ops.
	ExpirePending(ctx context.Context, now time.Time, expiredStatus string) (int, error)
	// AttributionStatsForHosts returns per-host counts of bookings attributed
	// since the given instant and the most recent attribution timestamps.
	AttributionStatsForHosts(ctx context.Context, hostIDs []string, since time.Time) (map[string]AttributionStats, error)
	ListBookingsForTemplate(ctx context.Context, eventTemplateID, status string) ([]Booking, error)
}

// NotificationRepository owns reminder rules and the dispatch ledger.
type NotificationRepository interface {
	ListActiveRules(ctx context.Context) ([]NotificationRule, error)
	CreateRule(ctx context.Context, rule NotificationRule) error
	// ListDispatchedRuleIDs returns, for the given booking, the IDs of rules
	// already marked dispatched.
	ListDispatchedRuleIDs(ctx context.Context, bookingID string) ([]string, error)
	// MarkDispatched inserts the ledger row for the pair; ErrDuplicate means
	// another poller already marked it.
	MarkDispatched(ctx context.Context, dispatch NotificationDispatch) error
}
