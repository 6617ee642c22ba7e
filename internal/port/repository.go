package port

import (
	"context"
	"time"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
)

// LookupRepository persists the outcome of download requests
type LookupRepository interface {
	// RecordLookup stores a lookup and sets its ID
	RecordLookup(ctx context.Context, lookup *domain.Lookup) error

	// RecentLookups returns the newest lookups first
	RecentLookups(ctx context.Context, limit int) ([]*domain.Lookup, error)

	// GetLookupStats returns aggregated counters
	GetLookupStats(ctx context.Context) (*domain.LookupStats, error)

	// PruneLookups deletes lookups older than the given age
	PruneLookups(ctx context.Context, olderThan time.Duration) (int, error)
}

// ResultCache stores successful resolver results by post URL
type ResultCache interface {
	// GetResult returns a cached result, or nil if absent or expired
	GetResult(ctx context.Context, postURL string) (*domain.ResolverResult, error)

	// PutResult stores a result for ttl
	PutResult(ctx context.Context, postURL string, result *domain.ResolverResult, ttl time.Duration) error

	// DeleteExpiredResults removes expired entries
	DeleteExpiredResults(ctx context.Context) (int, error)
}

// Store combines the persistence interfaces
type Store interface {
	LookupRepository
	ResultCache

	// Close closes the database connection
	Close() error

	// Ping checks database connectivity
	Ping() error
}
