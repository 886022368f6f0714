package sqlite

import (
	"context"
	"fmt"
)

// schema is applied on startup. Statements are idempotent so repeated
// migrations are safe.
//
// The partial unique index over (host_id, scheduled_at) is what makes the
// slot claim atomic: two concurrent inserts for the same host and instant
// can both pass the availability check, but only one insert commits; the
// loser surfaces as ErrDuplicate. Terminal statuses fall outside the index,
// so a canceled or expired booking frees its slot.
const schema = `
CREATE TABLE IF NOT EXISTS hosts (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	priority INTEGER NOT NULL DEFAULT 1,
	active INTEGER NOT NULL DEFAULT 1,
	calendar_connected INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS availability_windows (
	id TEXT PRIMARY KEY,
	host_id TEXT NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
	weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	timezone TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_availability_windows_host
	ON availability_windows(host_id);

CREATE TABLE IF NOT EXISTS disqualification_rule_sets (
	id TEXT PRIMARY KEY,
	event_template_id TEXT NOT NULL UNIQUE,
	combinator TEXT NOT NULL CHECK (combinator IN ('AND', 'OR')),
	message TEXT NOT NULL DEFAULT '',
	redirect_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS disqualification_rules (
	id TEXT PRIMARY KEY,
	rule_set_id TEXT NOT NULL REFERENCES disqualification_rule_sets(id) ON DELETE CASCADE,
	field_ref TEXT NOT NULL,
	operator TEXT NOT NULL CHECK (operator IN ('is', 'is_not')),
	expected_value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_disqualification_rules_set
	ON disqualification_rules(rule_set_id);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	event_template_id TEXT NOT NULL,
	event_name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	host_id TEXT REFERENCES hosts(id),
	guest_name TEXT NOT NULL,
	guest_email TEXT NOT NULL,
	guest_phone TEXT NOT NULL DEFAULT '',
	scheduled_at TEXT NOT NULL,
	timezone TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
	status TEXT NOT NULL CHECK (status IN ('draft', 'pending_confirmation', 'confirmed', 'canceled', 'rescheduled', 'expired')),
	confirmation_token_digest TEXT,
	token_expires_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_slot_claim
	ON bookings(host_id, scheduled_at)
	WHERE status IN ('pending_confirmation', 'confirmed');

CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_token
	ON bookings(confirmation_token_digest)
	WHERE confirmation_token_digest IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_bookings_template_status
	ON bookings(event_template_id, status);

CREATE INDEX IF NOT EXISTS idx_bookings_status_expiry
	ON bookings(status, token_expires_at);

CREATE TABLE IF NOT EXISTS notification_rules (
	id TEXT PRIMARY KEY,
	event_template_id TEXT NOT NULL,
	recipient_type TEXT NOT NULL CHECK (recipient_type IN ('guest', 'host')),
	channel TEXT NOT NULL CHECK (channel IN ('email', 'sms', 'chat')),
	offset_value INTEGER NOT NULL CHECK (offset_value >= 0),
	offset_unit TEXT NOT NULL CHECK (offset_unit IN ('minutes', 'hours', 'days')),
	offset_direction TEXT NOT NULL CHECK (offset_direction IN ('before', 'after')),
	subject TEXT NOT NULL DEFAULT '',
	message_template TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS notification_dispatches (
	booking_id TEXT NOT NULL REFERENCES bookings(id),
	rule_id TEXT NOT NULL REFERENCES notification_rules(id),
	dispatched_at TEXT NOT NULL,
	PRIMARY KEY (booking_id, rule_id)
);
`

// Migrate applies the schema to the pool's database.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
