package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// HostRepository implements persistence.HostRepository using SQLite
type HostRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewHostRepository creates a new SQLite host repository
func NewHostRepository(pool *ConnectionPool) *HostRepository {
	return &HostRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateHost inserts a new host into the database
func (r *HostRepository) CreateHost(ctx context.Context, host persistence.Host) error {
	if host.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	if host.CreatedAt.IsZero() {
		host.CreatedAt = now
	}
	if host.UpdatedAt.IsZero() {
		host.UpdatedAt = now
	}

	query := `
		INSERT INTO hosts (id, display_name, email, priority, active, calendar_connected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		host.ID,
		host.DisplayName,
		host.Email,
		host.Priority,
		host.Active,
		host.CalendarConnected,
		formatTime(host.CreatedAt),
		formatTime(host.UpdatedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// GetHost retrieves a host by ID from the database
func (r *HostRepository) GetHost(ctx context.Context, id string) (persistence.Host, error) {
	if id == "" {
		return persistence.Host{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, display_name, email, priority, active, calendar_connected, created_at, updated_at
		FROM hosts
		WHERE id = ?
	`

	host, err := scanHost(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Host{}, persistence.ErrNotFound
		}
		return persistence.Host{}, r.mapper.MapError(err)
	}

	return host, nil
}

// ListActiveHosts returns active hosts ordered by ID
func (r *HostRepository) ListActiveHosts(ctx context.Context) ([]persistence.Host, error) {
	query := `
		SELECT id, display_name, email, priority, active, calendar_connected, created_at, updated_at
		FROM hosts
		WHERE active = 1
		ORDER BY id ASC
	`

	rows, err := r.helper.Query(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var hosts []persistence.Host
	for rows.Next() {
		host, err := scanHost(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		hosts = append(hosts, host)
	}

	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return hosts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHost(row rowScanner) (persistence.Host, error) {
	var host persistence.Host
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&host.ID,
		&host.DisplayName,
		&host.Email,
		&host.Priority,
		&host.Active,
		&host.CalendarConnected,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.Host{}, err
	}

	if host.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return persistence.Host{}, err
	}
	if host.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return persistence.Host{}, err
	}

	return host, nil
}
