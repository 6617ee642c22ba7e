package domain

import "time"

// Lookup records the outcome of one download request
type Lookup struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	URL        string    `json:"url"`
	Status     int       `json:"status"`
	MediaCount int       `json:"media_count"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// LookupStats contains aggregated lookup history
type LookupStats struct {
	Total         int64      `json:"total"`
	Succeeded     int64      `json:"succeeded"`
	NotFound      int64      `json:"not_found"`
	Failed        int64      `json:"failed"`
	Rejected      int64      `json:"rejected"`
	AvgDurationMs float64    `json:"avg_duration_ms"`
	CachedResults int64      `json:"cached_results"`
	LastLookupAt  *time.Time `json:"last_lookup_at,omitempty"`
}
