package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendAPI {
		t.Fatalf("default backend = %q", cfg.Backend)
	}
	if cfg.BatchSize != 3 {
		t.Fatalf("default batch size = %d", cfg.BatchSize)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("default poll interval = %v", cfg.PollInterval)
	}
	if cfg.MaxRuntime != 0 {
		t.Fatalf("default max runtime = %v", cfg.MaxRuntime)
	}
	if cfg.DislikeAPIURL == "" {
		t.Fatal("expected default dislike API URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND", "scraper")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("MAX_RETRIES", "9")
	t.Setenv("MIN_VIDEO_DELAY", "100ms")
	t.Setenv("MAX_VIDEO_DELAY", "50ms") // below min: clamped up
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != BackendScraper {
		t.Fatalf("backend = %q", cfg.Backend)
	}
	if cfg.PollInterval != 2*time.Second || cfg.BatchSize != 7 || cfg.MaxRetries != 9 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxVideoDelay != cfg.MinVideoDelay {
		t.Fatalf("max video delay not clamped: %v < %v", cfg.MaxVideoDelay, cfg.MinVideoDelay)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BACKEND", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidateBackendReady(t *testing.T) {
	t.Setenv("BACKEND", "api")
	t.Setenv("YOUTUBE_API_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateBackendReady(); err == nil {
		t.Fatal("expected error when API key missing for api backend")
	}
	cfg.Backend = BackendScraper
	if err := cfg.ValidateBackendReady(); err != nil {
		t.Fatalf("scraper backend should not require API key: %v", err)
	}
}
