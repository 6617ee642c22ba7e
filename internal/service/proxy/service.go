// Package proxy validates download requests, calls the resolver and
// classifies its outcome.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
	"github.com/vertextoedge/instagram-proxy/internal/logger"
	"github.com/vertextoedge/instagram-proxy/internal/port"
)

// Config contains proxy service configuration
type Config struct {
	// Timeout bounds a single resolver call. Zero means no timeout.
	Timeout time.Duration

	// RateLimit caps resolver calls per second. Zero means unlimited.
	RateLimit float64

	// CacheTTL is how long successful results are cached. Zero disables caching.
	CacheTTL time.Duration

	// Coalesce shares one resolver call between concurrent requests for the
	// same URL. The shared call runs under the first caller's context values.
	Coalesce bool
}

// Service is the proxy service
type Service struct {
	config   *Config
	resolver port.Resolver
	lookups  port.LookupRepository
	cache    port.ResultCache
	limiter  *rate.Limiter
	group    singleflight.Group
	logger   *zap.Logger
}

// Option configures optional collaborators
type Option func(*Service)

// WithLookups records every outcome in repo
func WithLookups(repo port.LookupRepository) Option {
	return func(s *Service) { s.lookups = repo }
}

// WithCache serves and stores successful results through cache
func WithCache(cache port.ResultCache) Option {
	return func(s *Service) { s.cache = cache }
}

// New creates a new proxy Service
func New(cfg *Config, resolver port.Resolver, logger *zap.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = &Config{}
	}

	s := &Service{
		config:   cfg,
		resolver: resolver,
		logger:   logger,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Download resolves the media of req.URL.
// It returns domain.ErrURLRequired, domain.ErrNoMedia or a *domain.UpstreamError
// on failure, and the unmodified resolver result on success.
func (s *Service) Download(ctx context.Context, req domain.DownloadRequest) (*domain.ResolverResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx, s.logger)

	result, err := s.download(ctx, req.URL, log)

	s.record(ctx, req.URL, result, err, time.Since(start), log)
	return result, err
}

func (s *Service) download(ctx context.Context, postURL string, log *zap.Logger) (*domain.ResolverResult, error) {
	if postURL == "" {
		return nil, domain.ErrURLRequired
	}

	if cached := s.cached(ctx, postURL, log); cached != nil {
		log.Info("media found in cache", zap.String("url", postURL), zap.Int("count", len(cached.URLList)))
		return cached, nil
	}

	result, err := s.resolve(ctx, postURL)
	if err != nil {
		log.Error("resolver failed", zap.String("url", postURL), zap.Error(err))
		return nil, domain.NewUpstreamError(err)
	}

	if !result.HasMedia() {
		log.Info("no media found for this URL", zap.String("url", postURL))
		return nil, domain.ErrNoMedia
	}

	log.Info("media found",
		zap.String("url", postURL),
		zap.Int("count", len(result.URLList)),
		zap.Strings("url_list", result.URLList))

	s.store(ctx, postURL, result, log)
	return result, nil
}

// resolve calls the resolver for postURL under the caller's context,
// or once per distinct in-flight URL when coalescing is enabled
func (s *Service) resolve(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	if !s.config.Coalesce {
		return s.call(ctx, postURL)
	}

	// The shared call must not die with whichever caller started it
	callCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(postURL, func() (interface{}, error) {
		return s.call(callCtx, postURL)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Val.(*domain.ResolverResult)
		return result, nil
	}
}

// call runs one resolver call bounded by the configured timeout and rate limit
func (s *Service) call(ctx context.Context, postURL string) (*domain.ResolverResult, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("resolver rate limit: %w", err)
		}
	}

	result, err := s.resolver.Resolve(ctx, postURL)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && s.config.Timeout > 0 {
		return nil, fmt.Errorf("resolver timed out after %s: %w", s.config.Timeout, err)
	}
	return result, err
}

func (s *Service) cached(ctx context.Context, postURL string, log *zap.Logger) *domain.ResolverResult {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return nil
	}

	result, err := s.cache.GetResult(ctx, postURL)
	if err != nil {
		log.Warn("failed to read result cache", zap.String("url", postURL), zap.Error(err))
		return nil
	}
	if !result.HasMedia() {
		return nil
	}
	return result
}

func (s *Service) store(ctx context.Context, postURL string, result *domain.ResolverResult, log *zap.Logger) {
	if s.cache == nil || s.config.CacheTTL <= 0 {
		return
	}
	if err := s.cache.PutResult(ctx, postURL, result, s.config.CacheTTL); err != nil {
		log.Warn("failed to write result cache", zap.String("url", postURL), zap.Error(err))
	}
}

// record stores the outcome; failures never affect the response
func (s *Service) record(ctx context.Context, postURL string, result *domain.ResolverResult, err error, elapsed time.Duration, log *zap.Logger) {
	if s.lookups == nil {
		return
	}

	lookup := &domain.Lookup{
		RequestID:  logger.RequestID(ctx),
		URL:        postURL,
		Status:     StatusCode(err),
		DurationMs: elapsed.Milliseconds(),
	}
	if result != nil {
		lookup.MediaCount = len(result.URLList)
	}
	if err != nil {
		lookup.Error = err.Error()
	}

	if err := s.lookups.RecordLookup(context.WithoutCancel(ctx), lookup); err != nil {
		log.Warn("failed to record lookup", zap.Error(err))
	}
}

// StatusCode maps a Download error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrURLRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoMedia):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
