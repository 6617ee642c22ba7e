package sqlite

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

// RecordLookup stores a lookup and sets its ID
func (s *Store) RecordLookup(ctx context.Context, lookup *domain.Lookup) error {
	if lookup.CreatedAt.IsZero() {
		lookup.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO lookups (request_id, url, status, media_count, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		lookup.RequestID, lookup.URL, lookup.Status, lookup.MediaCount,
		lookup.Error, lookup.DurationMs, lookup.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	lookup.ID = id

	return nil
}

// RecentLookups returns the newest lookups first
func (s *Store) RecentLookups(ctx context.Context, limit int) ([]*domain.Lookup, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, url, status, media_count, error, duration_ms, created_at
		FROM lookups
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lookups []*domain.Lookup
	for rows.Next() {
		l := &domain.Lookup{}
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.RequestID, &l.URL, &l.Status, &l.MediaCount,
			&l.Error, &l.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = time.UnixMilli(createdAt)
		lookups = append(lookups, l)
	}

	return lookups, rows.Err()
}

// GetLookupStats returns aggregated counters
func (s *Store) GetLookupStats(ctx context.Context) (*domain.LookupStats, error) {
	stats := &domain.LookupStats{}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status >= 500 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0),
			MAX(created_at)
		FROM lookups
	`

	var lastAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, http.StatusOK, http.StatusNotFound, http.StatusBadRequest).Scan(
		&stats.Total, &stats.Succeeded, &stats.NotFound, &stats.Failed, &stats.Rejected,
		&stats.AvgDurationMs, &lastAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := time.UnixMilli(lastAt.Int64)
		stats.LastLookupAt = &t
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM result_cache WHERE expires_at > ?", time.Now().UnixMilli(),
	).Scan(&stats.CachedResults)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// PruneLookups deletes lookups older than the given age
func (s *Store) PruneLookups(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	result, err := s.db.ExecContext(ctx, "DELETE FROM lookups WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
