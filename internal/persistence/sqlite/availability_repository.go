package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// AvailabilityRepository implements persistence.AvailabilityRepository using SQLite
type AvailabilityRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAvailabilityRepository creates a new SQLite availability repository
func NewAvailabilityRepository(pool *ConnectionPool) *AvailabilityRepository {
	return &AvailabilityRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateWindow inserts a recurring availability window for a host
func (r *AvailabilityRepository) CreateWindow(ctx context.Context, window persistence.AvailabilityWindow) error {
	if window.ID == "" || window.HostID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO availability_windows (id, host_id, weekday, start_time, end_time, timezone)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		window.ID,
		window.HostID,
		int(window.Weekday),
		window.StartTime,
		window.EndTime,
		window.Timezone,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// ListWindowsForHosts returns every window belonging to the given hosts,
// ordered by host then weekday then start time.
func (r *AvailabilityRepository) ListWindowsForHosts(ctx context.Context, hostIDs []string) ([]persistence.AvailabilityWindow, error) {
	if len(hostIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(hostIDs)-1) + "?"
	query := `
		SELECT id, host_id, weekday, start_time, end_time, timezone
		FROM availability_windows
		WHERE host_id IN (` + placeholders + `)
		ORDER BY host_id ASC, weekday ASC, start_time ASC
	`

	args := make([]any, len(hostIDs))
	for i, id := range hostIDs {
		args[i] = id
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var windows []persistence.AvailabilityWindow
	for rows.Next() {
		var window persistence.AvailabilityWindow
		var weekday int
		err := rows.Scan(
			&window.ID,
			&window.HostID,
			&weekday,
			&window.StartTime,
			&window.EndTime,
			&window.Timezone,
		)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		window.Weekday = time.Weekday(weekday)
		windows = append(windows, window)
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return windows, nil
}
