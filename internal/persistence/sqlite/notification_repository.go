package sqlite

import (
	"context"

	"github.com/example/booking-engine/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite
type NotificationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateRule inserts a notification rule
func (r *NotificationRepository) CreateRule(ctx context.Context, rule persistence.NotificationRule) error {
	if rule.ID == "" || rule.EventTemplateID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO notification_rules (
			id, event_template_id, recipient_type, channel,
			offset_value, offset_unit, offset_direction,
			subject, message_template, is_active
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		rule.ID,
		rule.EventTemplateID,
		rule.RecipientType,
		rule.Channel,
		rule.OffsetValue,
		rule.OffsetUnit,
		rule.OffsetDirection,
		rule.Subject,
		rule.MessageTemplate,
		rule.IsActive,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// ListActiveRules returns every active notification rule
func (r *NotificationRepository) ListActiveRules(ctx context.Context) ([]persistence.NotificationRule, error) {
	query := `
		SELECT id, event_template_id, recipient_type, channel,
		       offset_value, offset_unit, offset_direction,
		       subject, message_template, is_active
		FROM notification_rules
		WHERE is_active = 1
		ORDER BY id ASC
	`

	rows, err := r.helper.Query(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rules []persistence.NotificationRule
	for rows.Next() {
		var rule persistence.NotificationRule
		err := rows.Scan(
			&rule.ID,
			&rule.EventTemplateID,
			&rule.RecipientType,
			&rule.Channel,
			&rule.OffsetValue,
			&rule.OffsetUnit,
			&rule.OffsetDirection,
			&rule.Subject,
			&rule.MessageTemplate,
			&rule.IsActive,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return rules, nil
}

// ListDispatchedRuleIDs returns the IDs of rules already dispatched for the
// given booking
func (r *NotificationRepository) ListDispatchedRuleIDs(ctx context.Context, bookingID string) ([]string, error) {
	query := `SELECT rule_id FROM notification_dispatches WHERE booking_id = ?`

	rows, err := r.helper.Query(ctx, query, bookingID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var ruleIDs []string
	for rows.Next() {
		var ruleID string
		if err := rows.Scan(&ruleID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		ruleIDs = append(ruleIDs, ruleID)
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return ruleIDs, nil
}

// MarkDispatched records the (booking, rule) pair in the ledger. The primary
// key over the pair makes a second mark surface as ErrDuplicate, which is how
// overlapping pollers deduplicate.
func (r *NotificationRepository) MarkDispatched(ctx context.Context, dispatch persistence.NotificationDispatch) error {
	query := `
		INSERT INTO notification_dispatches (booking_id, rule_id, dispatched_at)
		VALUES (?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		dispatch.BookingID,
		dispatch.RuleID,
		formatTime(dispatch.DispatchedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}
