package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOT_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected default listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr :9090, got %q", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("unexpected log defaults: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DefaultShareTTL != 0 {
		t.Errorf("shares should not expire by default, got %v", cfg.DefaultShareTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("expected 1m sweep interval, got %v", cfg.SweepInterval)
	}
	if cfg.ShareCreatesPerMin != 0 {
		t.Errorf("share creation should be unlimited by default, got %d", cfg.ShareCreatesPerMin)
	}
	if !filepath.IsAbs(cfg.RootDir) {
		t.Errorf("root dir should be canonicalized to an absolute path, got %q", cfg.RootDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROOT_DIR", t.TempDir())
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DEFAULT_SHARE_TTL", "24h")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SHARE_CREATES_PER_MINUTE", "10")
	t.Setenv("BASE_URL", "https://files.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr override ignored: %q", cfg.ListenAddr)
	}
	if cfg.DefaultShareTTL != 24*time.Hour {
		t.Errorf("TTL override ignored: %v", cfg.DefaultShareTTL)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("sweep interval override ignored: %v", cfg.SweepInterval)
	}
	if cfg.ShareCreatesPerMin != 10 {
		t.Errorf("rate limit override ignored: %d", cfg.ShareCreatesPerMin)
	}
	if cfg.BaseURL != "https://files.example.com" {
		t.Errorf("base URL override ignored: %q", cfg.BaseURL)
	}
}

func TestLoadRejectsBadRoot(t *testing.T) {
	t.Setenv("ROOT_DIR", filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing root dir")
	}
}

func TestLoadRejectsBadSweepInterval(t *testing.T) {
	t.Setenv("ROOT_DIR", t.TempDir())
	t.Setenv("SWEEP_INTERVAL", "-5s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative sweep interval")
	}
}
