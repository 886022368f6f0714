// Package attribution picks exactly one host from a pool of qualified,
// available candidates. The ranking is a pure function over externally
// supplied statistics; the caller records the resulting attribution so that
// future calls observe updated counts.
package attribution

import (
	"errors"
	"sort"
	"time"
)

// ErrNoCandidate is returned when the candidate pool is empty.
var ErrNoCandidate = errors.New("attribution: no candidate host")

// Candidate is one host eligible for attribution together with its
// round-robin statistics over the caller's lookback window.
type Candidate struct {
	HostID string
	// Priority orders hosts ahead of fairness; lower is preferred.
	Priority int
	// RecentCount is the number of bookings attributed to the host within
	// the lookback window.
	RecentCount int
	// LastAttributedAt is the host's most recent attribution instant, nil
	// when the host has never been attributed.
	LastAttributedAt *time.Time
}

// Attribute returns the ID of the single host the pool's ranking selects.
// The order is strict and deterministic: priority ascending, then recent
// booking count ascending, then oldest last attribution first (never
// attributed sorts before any timestamp), then host ID ascending.
func Attribute(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidate
	}

	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	return ranked[0].HostID, nil
}

func less(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.RecentCount != b.RecentCount {
		return a.RecentCount < b.RecentCount
	}
	switch {
	case a.LastAttributedAt == nil && b.LastAttributedAt != nil:
		return true
	case a.LastAttributedAt != nil && b.LastAttributedAt == nil:
		return false
	case a.LastAttributedAt != nil && b.LastAttributedAt != nil:
		if !a.LastAttributedAt.Equal(*b.LastAttributedAt) {
			return a.LastAttributedAt.Before(*b.LastAttributedAt)
		}
	}
	return a.HostID < b.HostID
}
