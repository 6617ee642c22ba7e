package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vertextoedge/instagram-proxy/internal/adapter/instagram"
	"github.com/vertextoedge/instagram-proxy/internal/adapter/sqlite"
	"github.com/vertextoedge/instagram-proxy/internal/config"
	"github.com/vertextoedge/instagram-proxy/internal/logger"
	"github.com/vertextoedge/instagram-proxy/internal/port"
	"github.com/vertextoedge/instagram-proxy/internal/service/maintenance"
	"github.com/vertextoedge/instagram-proxy/internal/service/proxy"
	"github.com/vertextoedge/instagram-proxy/internal/service/server"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting instagram-proxy",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create Instagram resolver
	client := instagram.NewClient(&instagram.ClientConfig{
		BaseURL:             cfg.Resolver.BaseURL,
		UserAgent:           cfg.Resolver.UserAgent,
		DocID:               cfg.Resolver.DocID,
		Retries:             cfg.Resolver.Retries,
		RetryDelay:          cfg.Resolver.GetRetryDelay(),
		CSRFRefreshInterval: cfg.Resolver.GetCSRFRefreshInterval(),
	}, zapLogger)
	resolver := instagram.NewResolver(client, zapLogger)

	// Open lookup history database when configured
	var store port.Store
	var proxyOpts []proxy.Option
	if cfg.Database.Path != "" {
		sqliteStore, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
		}
		defer sqliteStore.Close()

		store = sqliteStore
		proxyOpts = append(proxyOpts, proxy.WithLookups(sqliteStore), proxy.WithCache(sqliteStore))
		zapLogger.Info("lookup history enabled", zap.String("path", cfg.Database.Path))
	} else if cfg.Cache.GetTTL() > 0 {
		zapLogger.Warn("cache.ttl is set but database.path is empty, result cache disabled")
	}

	// Create proxy service
	proxyService := proxy.New(&proxy.Config{
		Timeout:   cfg.Resolver.GetTimeout(),
		RateLimit: cfg.Resolver.RateLimit,
		CacheTTL:  cfg.Cache.GetTTL(),
		Coalesce:  cfg.Resolver.Coalesce,
	}, resolver, zapLogger, proxyOpts...)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:             cfg.HTTP.BindAddr(),
		ReadTimeout:          cfg.HTTP.GetReadTimeout(),
		WriteTimeout:         cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:          cfg.HTTP.GetIdleTimeout(),
		RedactUpstreamErrors: cfg.HTTP.RedactUpstreamErrors,
	}
	httpServer := server.New(serverCfg, proxyService, store, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		zapLogger.Fatal("HTTP server failed to start", zap.Error(err))
	}

	// Start maintenance service
	var maintenanceService *maintenance.Service
	if store != nil {
		maintenanceService = maintenance.New(&maintenance.Config{
			CleanupInterval: cfg.Maintenance.GetCleanupInterval(),
			HistoryMaxAge:   cfg.Maintenance.GetHistoryMaxAge(),
		}, store, store, zapLogger)

		go func() {
			if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
				zapLogger.Error("maintenance service stopped with error", zap.Error(err))
			}
		}()
	}

	zapLogger.Info(fmt.Sprintf("Server running on port %d", cfg.HTTP.Port),
		zap.String("http_addr", httpServer.Addr()),
	)

	// Wait for interrupt signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		zapLogger.Info("shutdown signal received, stopping services...")
	case err := <-httpServer.Done():
		zapLogger.Error("HTTP server stopped unexpectedly", zap.Error(err))
	}

	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if maintenanceService != nil {
		maintenanceService.Stop()
	}

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
