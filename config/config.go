// Package config loads environment variables and provides a typed Config
// used across the service. It applies sensible defaults so the binary can
// run locally with minimal setup; missing optional variables disable
// features (e.g., the scraper falls back to no cookies file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selection values for BACKEND.
const (
	BackendAPI     = "api"
	BackendScraper = "scraper"
)

type Config struct {
	// Fetch backend
	Backend       string // api | scraper
	YouTubeAPIKey string
	CookiesFile   string // optional cookies file passed to the scrape tool
	DislikeAPIURL string

	// Worker
	PollInterval time.Duration
	BatchSize    int
	MaxRuntime   time.Duration // 0 = run until shutdown

	// Backend retry policy
	MaxRetries int
	RetryDelay time.Duration

	// Scraper throttling
	MinVideoDelay time.Duration
	MaxVideoDelay time.Duration
	MinBatchDelay time.Duration
	MaxBatchDelay time.Duration
	ScrapeBatch   int // intra-batch detail concurrency
}

func envDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// Load reads environment variables and applies defaults. It doesn't fail if
// the API key is missing; use ValidateBackendReady when you require the
// configured backend to be usable.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Backend = os.Getenv("BACKEND")
	if cfg.Backend == "" {
		cfg.Backend = BackendAPI
	}
	if cfg.Backend != BackendAPI && cfg.Backend != BackendScraper {
		return nil, fmt.Errorf("invalid BACKEND %q (want api or scraper)", cfg.Backend)
	}
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.CookiesFile = os.Getenv("COOKIES_FILE")
	cfg.DislikeAPIURL = os.Getenv("DISLIKE_API_URL")
	if cfg.DislikeAPIURL == "" {
		cfg.DislikeAPIURL = "https://returnyoutubedislikeapi.com"
	}

	cfg.PollInterval = envDuration("POLL_INTERVAL", 10*time.Second)
	cfg.BatchSize = envInt("BATCH_SIZE", 3)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	cfg.MaxRuntime = envDuration("MAX_RUNTIME", 0)

	cfg.MaxRetries = envInt("MAX_RETRIES", 3)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.RetryDelay = envDuration("RETRY_DELAY", 5*time.Second)

	cfg.MinVideoDelay = envDuration("MIN_VIDEO_DELAY", 500*time.Millisecond)
	cfg.MaxVideoDelay = envDuration("MAX_VIDEO_DELAY", 2*time.Second)
	cfg.MinBatchDelay = envDuration("MIN_BATCH_DELAY", 2*time.Second)
	cfg.MaxBatchDelay = envDuration("MAX_BATCH_DELAY", 5*time.Second)
	if cfg.MaxVideoDelay < cfg.MinVideoDelay {
		cfg.MaxVideoDelay = cfg.MinVideoDelay
	}
	if cfg.MaxBatchDelay < cfg.MinBatchDelay {
		cfg.MaxBatchDelay = cfg.MinBatchDelay
	}
	cfg.ScrapeBatch = envInt("SCRAPE_BATCH", 5)
	if cfg.ScrapeBatch <= 0 {
		cfg.ScrapeBatch = 1
	}

	return cfg, nil
}

// ValidateBackendReady checks required fields for the configured backend.
func (c *Config) ValidateBackendReady() error {
	if c.Backend == BackendAPI && c.YouTubeAPIKey == "" {
		return fmt.Errorf("missing YOUTUBE_API_KEY for api backend")
	}
	return nil
}
