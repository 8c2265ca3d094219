// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all drift server configuration.
type Config struct {
	// Root directory served by the browser; all client paths resolve under it.
	RootDir string

	// Server
	ListenAddr  string
	MetricsAddr string

	// BaseURL is the external URL prefix embedded in share links.
	// Empty means links are built from the request Host header.
	BaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Shares
	DefaultShareTTL time.Duration // 0 = shares never expire unless a TTL is requested
	SweepInterval   time.Duration
	ShareDBPath     string // sqlite file; empty = in-memory store

	// Rate limiting for share creation (per client IP; 0 = unlimited)
	ShareCreatesPerMin int

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		RootDir:            envOr("ROOT_DIR", "."),
		ListenAddr:         envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:        envOr("METRICS_ADDR", ":9090"),
		BaseURL:            envOr("BASE_URL", ""),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		DefaultShareTTL:    envDuration("DEFAULT_SHARE_TTL", 0),
		SweepInterval:      envDuration("SWEEP_INTERVAL", time.Minute),
		ShareDBPath:        envOr("SHARE_DB_PATH", ""),
		ShareCreatesPerMin: envInt("SHARE_CREATES_PER_MINUTE", 0),
		TLSCertFile:        envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:         envOr("TLS_KEY_FILE", ""),
	}

	abs, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve ROOT_DIR %q: %w", cfg.RootDir, err)
	}
	// Canonicalize once; the resolver compares canonical paths against this.
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve ROOT_DIR %q: %w", cfg.RootDir, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat ROOT_DIR %q: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ROOT_DIR %q is not a directory", canonical)
	}
	cfg.RootDir = canonical

	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
