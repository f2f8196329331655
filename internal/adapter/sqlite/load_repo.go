package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkpress/assetloader/internal/domain"
)

const loadColumns = `id, url, name, status, strategy, size, chunk_size,
	range_requests, checksum, cache_path, error, started_at, duration_ns`

// Create inserts a new load record
func (s *Store) Create(r *domain.LoadRecord) error {
	query := `INSERT INTO loads (` + loadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		r.ID, r.URL, r.Name, r.Status, string(r.Strategy), r.Size, r.ChunkSize,
		r.RangeRequests, r.Checksum, r.CachePath, r.Error,
		r.StartedAt.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to insert load %s: %w", r.ID, err)
	}
	return nil
}

// Update stores the final state of a load record
func (s *Store) Update(r *domain.LoadRecord) error {
	query := `
		UPDATE loads
		SET status = ?, strategy = ?, size = ?, range_requests = ?,
			checksum = ?, cache_path = ?, error = ?, duration_ns = ?
		WHERE id = ?
	`

	res, err := s.db.Exec(query,
		r.Status, string(r.Strategy), r.Size, r.RangeRequests,
		r.Checksum, r.CachePath, r.Error, int64(r.Duration),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update load %s: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a record by ID
func (s *Store) Get(id string) (*domain.LoadRecord, error) {
	row := s.db.QueryRow(`SELECT `+loadColumns+` FROM loads WHERE id = ?`, id)
	r, err := scanLoad(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return r, err
}

// List returns the most recent records, newest first. A non-positive
// limit returns every record.
func (s *Store) List(limit int) ([]*domain.LoadRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+loadColumns+` FROM loads
		ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.LoadRecord
	for rows.Next() {
		r, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats summarizes all stored records
func (s *Store) Stats() (*domain.LoadStats, error) {
	stats := &domain.LoadStats{ByStrategy: make(map[string]int)}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN size ELSE 0 END), 0)
		FROM loads
	`, domain.LoadStatusCompleted, domain.LoadStatusFailed, domain.LoadStatusCompleted).Scan(
		&stats.Total, &stats.Completed, &stats.Failed, &stats.TotalBytes,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT strategy, COUNT(*) FROM loads
		WHERE status = ? GROUP BY strategy`, domain.LoadStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, err
		}
		stats.ByStrategy[strategy] = count
	}
	return stats, rows.Err()
}

// DeleteOlderThan removes records started before now-age
func (s *Store) DeleteOlderThan(age time.Duration) (int, error) {
	threshold := time.Now().Add(-age).UnixNano()
	res, err := s.db.Exec(`DELETE FROM loads WHERE started_at < ? AND status != ?`,
		threshold, domain.LoadStatusRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoad(row scanner) (*domain.LoadRecord, error) {
	r := &domain.LoadRecord{}
	var strategy string
	var startedAt, duration int64

	err := row.Scan(
		&r.ID, &r.URL, &r.Name, &r.Status, &strategy, &r.Size, &r.ChunkSize,
		&r.RangeRequests, &r.Checksum, &r.CachePath, &r.Error, &startedAt, &duration,
	)
	if err != nil {
		return nil, err
	}

	r.Strategy = domain.Strategy(strategy)
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.Duration = time.Duration(duration)
	return r, nil
}
