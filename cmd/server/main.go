// drift server
//
// Self-hosted file browser with expiring share links:
// - Directory browsing over a configured root (traversal-safe)
// - Unguessable share tokens with TTL + background sweep
// - Streamed downloads with range support
// - Prometheus metrics & structured logging (zap)
// - Optional sqlite-backed durable share store
package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/driftshare/drift/internal/api"
	"github.com/driftshare/drift/internal/config"
	"github.com/driftshare/drift/internal/logging"
	"github.com/driftshare/drift/internal/metrics"
	"github.com/driftshare/drift/internal/quota"
	"github.com/driftshare/drift/internal/sharing"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("drift server starting...",
		zap.String("root", cfg.RootDir),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Share store: in-memory unless a sqlite path is configured.
	var store sharing.Store
	if cfg.ShareDBPath != "" {
		s, err := sharing.NewSQLiteStore(cfg.ShareDBPath)
		if err != nil {
			logging.Fatal("share db init failed", zap.Error(err))
		}
		store = s
		logging.Info("durable share store initialized", zap.String("path", cfg.ShareDBPath))
	} else {
		store = sharing.NewMemoryStore()
		logging.Info("in-memory share store initialized")
	}
	defer store.Close()

	shareService := sharing.NewService(cfg.RootDir, store, cfg.BaseURL, cfg.DefaultShareTTL)
	rateLimiter := quota.NewRateLimiter()

	srv := api.NewServer(cfg.RootDir, shareService, rateLimiter, cfg.ShareCreatesPerMin)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	// Periodic expiration sweep, decoupled from request handling.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				shareService.Sweep(ctx)
			}
		}
	}()

	// Periodic rate limiter bucket cleanup.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(24 * time.Hour)
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}
