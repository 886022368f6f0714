package availability

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock offset expressed in minutes since local midnight.
type TimeOfDay int

// ParseTimeOfDay converts an "HH:MM" string into a TimeOfDay.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("availability: invalid time of day %q: %w", value, err)
	}
	return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
}

// String renders the offset back to "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Window is one recurring weekly availability interval for a host, expressed
// in the host's configured timezone. Start must be strictly before End; a
// window never crosses midnight.
type Window struct {
	Weekday  time.Weekday
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Index answers availability queries over the recurring weekly windows of a
// set of hosts. It is built per request from repository data and holds no
// state beyond the windows it was given.
type Index struct {
	windows map[string][]Window
}

// NewIndex builds an index over the provided windows keyed by host ID.
// Malformed windows (Start >= End) are ignored rather than rejected; the
// write path owns that validation.
func NewIndex(windows map[string][]Window) *Index {
	idx := &Index{windows: make(map[string][]Window, len(windows))}
	for hostID, hostWindows := range windows {
		kept := make([]Window, 0, len(hostWindows))
		for _, w := range hostWindows {
			if w.Start >= w.End {
				continue
			}
			kept = append(kept, w)
		}
		idx.windows[hostID] = kept
	}
	return idx
}

// IsAvailable reports whether the interval [at, at+duration) fits entirely
// inside one of the host's windows. Overlapping windows are treated as a
// union, but the interval must fit within a single window; a booking that
// runs past a window's end is not available. Unknown hosts and hosts with no
// windows are never available.
func (idx *Index) IsAvailable(hostID string, at time.Time, duration time.Duration) bool {
	if idx == nil || duration <= 0 {
		return false
	}
	for _, w := range idx.windows[hostID] {
		if windowContains(w, at, duration) {
			return true
		}
	}
	return false
}

// CandidateHosts filters hostIDs down to those available for the interval
// [at, at+duration), preserving the input order.
func (idx *Index) CandidateHosts(hostIDs []string, at time.Time, duration time.Duration) []string {
	if idx == nil {
		return nil
	}
	candidates := make([]string, 0, len(hostIDs))
	for _, hostID := range hostIDs {
		if idx.IsAvailable(hostID, at, duration) {
			candidates = append(candidates, hostID)
		}
	}
	return candidates
}

func windowContains(w Window, at time.Time, duration time.Duration) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}

	local := at.In(loc)
	if local.Weekday() != w.Weekday {
		return false
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	windowStart := dayStart.Add(time.Duration(w.Start) * time.Minute)
	windowEnd := dayStart.Add(time.Duration(w.End) * time.Minute)

	if local.Before(windowStart) {
		return false
	}
	return !local.Add(duration).After(windowEnd)
}
