package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vertextoedge/instagram-proxy/internal/port"
	"go.uber.org/zap"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to prune history and the result cache
	CleanupInterval time.Duration

	// HistoryMaxAge is the maximum age of recorded lookups before cleanup
	HistoryMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: time.Hour,
		HistoryMaxAge:   7 * 24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	lookups port.LookupRepository
	cache   port.ResultCache
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, lookups port.LookupRepository, cache port.ResultCache, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 7 * 24 * time.Hour
	}

	return &Service{
		config:  cfg,
		lookups: lookups,
		cache:   cache,
		logger:  logger,
	}
}

// Start runs maintenance until ctx is canceled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("history_max_age", s.config.HistoryMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			s.pruneLookups(ctx)
			s.pruneCache(ctx)
		}
	}
}

// pruneLookups removes lookups older than HistoryMaxAge
func (s *Service) pruneLookups(ctx context.Context) {
	if s.lookups == nil {
		return
	}
	pruned, err := s.lookups.PruneLookups(ctx, s.config.HistoryMaxAge)
	if err != nil {
		s.logger.Error("failed to prune lookup history", zap.Error(err))
	} else if pruned > 0 {
		s.logger.Info("pruned lookup history", zap.Int("count", pruned))
	}
}

// pruneCache removes expired cached results
func (s *Service) pruneCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	removed, err := s.cache.DeleteExpiredResults(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired results", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("deleted expired cached results", zap.Int("count", removed))
	}
}
