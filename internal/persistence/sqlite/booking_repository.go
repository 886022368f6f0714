package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const bookingColumns = `
	id, event_template_id, event_name, location, host_id,
	guest_name, guest_email, guest_phone,
	scheduled_at, timezone, duration_minutes, status,
	confirmation_token_digest, token_expires_at, created_at, updated_at
`

// ClaimBooking inserts the booking. The partial unique index on
// (host_id, scheduled_at) makes the insert double as the slot claim: when a
// concurrent request already took the slot the constraint fires and the
// caller receives ErrDuplicate.
func (r *BookingRepository) ClaimBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		booking.ID,
		booking.EventTemplateID,
		booking.EventName,
		booking.Location,
		nullableString(booking.HostID),
		booking.GuestName,
		booking.GuestEmail,
		booking.GuestPhone,
		formatTime(booking.ScheduledAt),
		booking.Timezone,
		booking.DurationMinutes,
		booking.Status,
		nullableString(booking.ConfirmationTokenDigest),
		formatTimePtr(booking.TokenExpiresAt),
		formatTime(booking.CreatedAt),
		formatTime(booking.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	booking, err := scanBooking(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Booking{}, persistence.ErrNotFound
		}
		return persistence.Booking{}, r.mapper.MapError(err)
	}

	return booking, nil
}

// GetBookingByTokenDigest retrieves the booking holding the given token
// digest. The token index is partial, so only bookings still carrying a
// token are reachable this way.
func (r *BookingRepository) GetBookingByTokenDigest(ctx context.Context, digest string) (persistence.Booking, error) {
	if digest == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE confirmation_token_digest = ?`

	booking, err := scanBooking(r.helper.QueryRow(ctx, query, digest))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Booking{}, persistence.ErrNotFound
		}
		return persistence.Booking{}, r.mapper.MapError(err)
	}

	return booking, nil
}

// UpdateBookingStatus applies a compare-and-set transition. The update only
// succeeds while the stored status still equals expectedStatus; a
// concurrent transition surfaces as ErrStaleStatus.
func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, booking persistence.Booking, expectedStatus string) error {
	if booking.ID == "" {
		return persistence.ErrNotFound
	}

	query := `
		UPDATE bookings
		SET status = ?, scheduled_at = ?, confirmation_token_digest = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.helper.Exec(ctx, query,
		booking.Status,
		formatTime(booking.ScheduledAt),
		nullableString(booking.ConfirmationTokenDigest),
		formatTimePtr(booking.TokenExpiresAt),
		formatTime(booking.UpdatedAt),
		booking.ID,
		expectedStatus,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish a missing row from a lost compare-and-set.
		var status string
		err := r.helper.QueryRow(ctx, "SELECT status FROM bookings WHERE id = ?", booking.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		if err != nil {
			return r.mapper.MapError(err)
		}
		return persistence.ErrStaleStatus
	}

	return nil
}

// ExpirePending transitions every pending booking whose token expiry has
// passed to the expired status, clearing token state. The statement is a
// single batch update, so overlapping reaper runs each expire a row at most
// once.
func (r *BookingRepository) ExpirePending(ctx context.Context, now time.Time, expiredStatus string) (int, error) {
	query := `
		UPDATE bookings
		SET status = ?, confirmation_token_digest = NULL, token_expires_at = NULL, updated_at = ?
		WHERE status = 'pending_confirmation'
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at < ?
	`

	result, err := r.helper.Exec(ctx, query, expiredStatus, formatTime(now), formatTime(now))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rowsAffected), nil
}

// AttributionStatsForHosts returns, per host, the number of bookings
// attributed since the given instant and the most recent attribution
// timestamp. Every booking that ever claimed a host counts; cancellations
// do not refund a host's position in the rotation.
func (r *BookingRepository) AttributionStatsForHosts(ctx context.Context, hostIDs []string, since time.Time) (map[string]persistence.AttributionStats, error) {
	stats := make(map[string]persistence.AttributionStats, len(hostIDs))
	if len(hostIDs) == 0 {
		return stats, nil
	}

	placeholders := strings.Repeat("?, ", len(hostIDs)-1) + "?"
	query := `
		SELECT host_id,
		       COUNT(CASE WHEN created_at >= ? THEN 1 END),
		       MAX(created_at)
		FROM bookings
		WHERE host_id IN (` + placeholders + `)
		GROUP BY host_id
	`

	args := make([]any, 0, len(hostIDs)+1)
	args = append(args, formatTime(since))
	for _, id := range hostIDs {
		args = append(args, id)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var hostID string
		var recentCount int
		var lastAttributedStr sql.NullString

		if err := rows.Scan(&hostID, &recentCount, &lastAttributedStr); err != nil {
			return nil, r.mapper.MapError(err)
		}

		lastAttributedAt, err := parseTimePtr(lastAttributedStr)
		if err != nil {
			return nil, err
		}

		stats[hostID] = persistence.AttributionStats{
			RecentCount:      recentCount,
			LastAttributedAt: lastAttributedAt,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return stats, nil
}

// ListBookingsForTemplate returns bookings for a template in the given
// status, ordered by scheduled instant
func (r *BookingRepository) ListBookingsForTemplate(ctx context.Context, eventTemplateID, status string) ([]persistence.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE event_template_id = ? AND status = ?
		ORDER BY scheduled_at ASC, id ASC
	`

	rows, err := r.helper.Query(ctx, query, eventTemplateID, status)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return bookings, nil
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var booking persistence.Booking
	var hostID, tokenDigest, tokenExpiresStr sql.NullString
	var scheduledAtStr, createdAtStr, updatedAtStr string

	err := row.Scan(
		&booking.ID,
		&booking.EventTemplateID,
		&booking.EventName,
		&booking.Location,
		&hostID,
		&booking.GuestName,
		&booking.GuestEmail,
		&booking.GuestPhone,
		&scheduledAtStr,
		&booking.Timezone,
		&booking.DurationMinutes,
		&booking.Status,
		&tokenDigest,
		&tokenExpiresStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.Booking{}, err
	}

	booking.HostID = stringPtr(hostID)
	booking.ConfirmationTokenDigest = stringPtr(tokenDigest)

	if booking.ScheduledAt, err = parseTime(scheduledAtStr); err != nil {
		return persistence.Booking{}, err
	}
	if booking.TokenExpiresAt, err = parseTimePtr(tokenExpiresStr); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Booking{}, err
	}

	return booking, nil
}
