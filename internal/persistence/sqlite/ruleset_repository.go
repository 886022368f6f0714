package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/booking-engine/internal/persistence"
)

// RuleSetRepository implements persistence.RuleSetRepository using SQLite
type RuleSetRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRuleSetRepository creates a new SQLite rule set repository
func NewRuleSetRepository(pool *ConnectionPool) *RuleSetRepository {
	return &RuleSetRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateRuleSet inserts a rule set and its rules atomically
func (r *RuleSetRepository) CreateRuleSet(ctx context.Context, set persistence.DisqualificationRuleSet) error {
	if set.ID == "" || set.EventTemplateID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO disqualification_rule_sets (id, event_template_id, combinator, message, redirect_url)
			VALUES (?, ?, ?, ?, ?)
		`,
			set.ID,
			set.EventTemplateID,
			set.Combinator,
			set.Message,
			set.RedirectURL,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, rule := range set.Rules {
			_, err := r.helper.ExecTx(tx, `
				INSERT INTO disqualification_rules (id, rule_set_id, field_ref, operator, expected_value)
				VALUES (?, ?, ?, ?, ?)
			`,
				rule.ID,
				set.ID,
				rule.FieldRef,
				rule.Operator,
				rule.ExpectedValue,
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}

		return nil
	})
}

// GetRuleSetForTemplate retrieves the qualification gate for an event
// template, including its rules. Returns ErrNotFound when no gate exists.
func (r *RuleSetRepository) GetRuleSetForTemplate(ctx context.Context, eventTemplateID string) (persistence.DisqualificationRuleSet, error) {
	if eventTemplateID == "" {
		return persistence.DisqualificationRuleSet{}, persistence.ErrNotFound
	}

	var set persistence.DisqualificationRuleSet
	err := r.helper.QueryRow(ctx, `
		SELECT id, event_template_id, combinator, message, redirect_url
		FROM disqualification_rule_sets
		WHERE event_template_id = ?
	`, eventTemplateID).Scan(
		&set.ID,
		&set.EventTemplateID,
		&set.Combinator,
		&set.Message,
		&set.RedirectURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.DisqualificationRuleSet{}, persistence.ErrNotFound
		}
		return persistence.DisqualificationRuleSet{}, r.mapper.MapError(err)
	}

	rows, err := r.helper.Query(ctx, `
		SELECT id, rule_set_id, field_ref, operator, expected_value
		FROM disqualification_rules
		WHERE rule_set_id = ?
		ORDER BY id ASC
	`, set.ID)
	if err != nil {
		return persistence.DisqualificationRuleSet{}, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var rule persistence.DisqualificationRule
		err := rows.Scan(
			&rule.ID,
			&rule.RuleSetID,
			&rule.FieldRef,
			&rule.Operator,
			&rule.ExpectedValue,
		)
		if err != nil {
			return persistence.DisqualificationRuleSet{}, r.mapper.MapError(err)
		}
		set.Rules = append(set.Rules, rule)
	}

	if err := rows.Err(); err != nil {
		return persistence.DisqualificationRuleSet{}, r.mapper.MapError(err)
	}

	return set, nil
}
