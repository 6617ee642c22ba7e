package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
	"github.com/vertextoedge/instagram-proxy/internal/port"
)

// Downloader resolves download requests
type Downloader interface {
	Download(ctx context.Context, req domain.DownloadRequest) (*domain.ResolverResult, error)
}

// Config contains HTTP server configuration
type Config struct {
	BindAddr             string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	RedactUpstreamErrors bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     ":9000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	store           port.Store
	logger          *zap.Logger
	metrics         *Metrics
	server          *http.Server
	handler         http.Handler
	downloadHandler *DownloadHandler
	debugHandler    *DebugHandler

	listener net.Listener
	done     chan error
}

// New creates a new HTTP server. store may be nil when lookup history is disabled.
func New(cfg *Config, downloader Downloader, store port.Store, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:  cfg,
		store:   store,
		logger:  logger,
		metrics: NewMetrics(),
	}

	s.downloadHandler = NewDownloadHandler(downloader, s.metrics, cfg.RedactUpstreamErrors, logger)
	s.debugHandler = NewDebugHandler(store, logger)

	mux := http.NewServeMux()

	// Status descriptor
	mux.HandleFunc("/", s.downloadHandler.HandleRoot)

	// Main API
	mux.HandleFunc("/api/download", s.downloadHandler.HandleDownload)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Debug endpoints
	mux.HandleFunc("/debug/stats", s.debugHandler.HandleStats)
	mux.HandleFunc("/debug/lookups", s.debugHandler.HandleLookups)

	// Metrics
	mux.Handle("/metrics", s.metrics.Handler())

	s.handler = RequestIDMiddleware()(
		CORSMiddleware()(
			LoggingMiddleware(logger, s.metrics)(
				RecoverMiddleware(logger)(mux))))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
// It returns once the port is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.done = make(chan error, 1)

	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))

	go func() {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
		close(s.done)
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Done is closed when the server stops serving; it yields the serve error, if any
func (s *Server) Done() <-chan error {
	return s.done
}

// Stop gracefully stops the HTTP server and waits for it to finish serving
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
