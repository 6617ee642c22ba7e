package domain

import (
	"errors"
	"time"
)

// Request outcome errors
var (
	ErrURLRequired = errors.New("Instagram URL is required")
	ErrNoMedia     = errors.New("No media found for this URL")
)

// Resolver errors
var (
	ErrInvalidPostURL = errors.New("failed to obtain shortcode")
	ErrMediaNotFound  = errors.New("only posts/reels supported, check if your link is valid")
	ErrRateLimited    = errors.New("rate limited by upstream")
)

// FallbackMessage is reported when an upstream failure carries no message.
const FallbackMessage = "Something went wrong"

// UpstreamError wraps any failure of the resolver call.
// No distinction is made between transient and permanent causes.
type UpstreamError struct {
	Err error
}

// Error returns the underlying message verbatim, or FallbackMessage if there is none
func (e *UpstreamError) Error() string {
	if e.Err != nil && e.Err.Error() != "" {
		return e.Err.Error()
	}
	return FallbackMessage
}

// Unwrap returns the underlying error
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as an upstream failure.
// An error that already is an UpstreamError is returned unchanged.
func NewUpstreamError(err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Err: err}
}

// IsUpstream returns true if the error came from the resolver
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// RetryableError represents an upstream response that should trigger a retry.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
