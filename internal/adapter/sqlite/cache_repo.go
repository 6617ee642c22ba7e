package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

// GetResult returns a cached result, or nil if absent or expired
func (s *Store) GetResult(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT result FROM result_cache WHERE url = ? AND expires_at > ?",
		postURL, time.Now().UnixMilli(),
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result domain.ResolverResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

// PutResult stores a result for ttl, replacing any previous entry
func (s *Store) PutResult(ctx context.Context, postURL string, result *domain.ResolverResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO result_cache (url, result, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			result = excluded.result,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`

	_, err = s.db.ExecContext(ctx, query, postURL, string(payload), now.Add(ttl).UnixMilli(), now.UnixMilli())
	return err
}

// DeleteExpiredResults removes expired entries
func (s *Store) DeleteExpiredResults(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM result_cache WHERE expires_at <= ?", time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
