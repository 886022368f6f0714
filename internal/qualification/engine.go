// Package qualification evaluates disqualification rule sets against the
// answers a guest submitted with a booking request. Evaluation is pure: it
// never mutates its inputs and a disqualification is a modeled outcome, not
// an error.
package qualification

import "strings"

// Operator identifies how a rule compares an answer with its expected value.
type Operator string

const (
	// OperatorIs triggers when the answer matches the expected value.
	OperatorIs Operator = "is"
	// OperatorIsNot triggers when no answer value equals the expected value.
	OperatorIsNot Operator = "is_not"
)

// Combinator controls how individual rule results combine.
type Combinator string

const (
	// CombinatorAnd disqualifies only when every rule triggers.
	CombinatorAnd Combinator = "AND"
	// CombinatorOr disqualifies as soon as any rule triggers.
	CombinatorOr Combinator = "OR"
)

// Rule is a single disqualification condition over one answered field.
type Rule struct {
	FieldRef      string
	Operator      Operator
	ExpectedValue string
}

// RuleSet groups rules under a combinator together with the user-facing
// outcome configured for a disqualified lead.
type RuleSet struct {
	Combinator  Combinator
	Rules       []Rule
	Message     string
	RedirectURL string
}

// Answer carries the recorded values for one question. Checkbox questions
// record every checked value; each value is an independent candidate match.
type Answer struct {
	QuestionID string
	Values     []string
}

// Result is the outcome of evaluating a rule set.
type Result struct {
	Qualified   bool
	Reason      string
	RedirectURL string
}

// Evaluate applies the rule set to the answers and reports whether the lead
// qualifies. An empty rule set always qualifies. Rules referencing a question
// without a recorded answer never trigger. Evaluation short-circuits: OR
// stops at the first triggering rule, AND at the first non-triggering one.
func Evaluate(set RuleSet, answers []Answer) Result {
	if len(set.Rules) == 0 {
		return Result{Qualified: true}
	}

	byQuestion := make(map[string][]string, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer.Values
	}

	disqualified := Result{
		Qualified:   false,
		Reason:      set.Message,
		RedirectURL: set.RedirectURL,
	}

	switch set.Combinator {
	case CombinatorAnd:
		for _, rule := range set.Rules {
			if !ruleTriggers(rule, byQuestion) {
				return Result{Qualified: true}
			}
		}
		return disqualified
	default:
		// OR is the historical default for unrecognized combinators.
		for _, rule := range set.Rules {
			if ruleTriggers(rule, byQuestion) {
				return disqualified
			}
		}
		return Result{Qualified: true}
	}
}

func ruleTriggers(rule Rule, answers map[string][]string) bool {
	values, ok := answers[rule.FieldRef]
	if !ok || len(values) == 0 {
		return false
	}

	switch rule.Operator {
	case OperatorIs:
		for _, value := range values {
			if matchesExpected(value, rule.ExpectedValue) {
				return true
			}
		}
		return false
	case OperatorIsNot:
		for _, value := range values {
			if value == rule.ExpectedValue {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// matchesExpected is case-sensitive string equality, except when the expected
// value is a country calling code: then a phone answer matches on its
// normalized prefix, so `phone is "+33"` catches every French number.
func matchesExpected(value, expected string) bool {
	if value == expected {
		return true
	}
	if isCountryCallingCode(expected) {
		return strings.HasPrefix(normalizePhone(value), expected)
	}
	return false
}

func isCountryCallingCode(value string) bool {
	if len(value) < 2 || len(value) > 4 || value[0] != '+' {
		return false
	}
	for _, r := range value[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizePhone strips spacing and separators commonly typed into phone
// fields, and rewrites the 00 international prefix to +.
func normalizePhone(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if strings.HasPrefix(normalized, "00") {
		normalized = "+" + normalized[2:]
	}
	return normalized
}
