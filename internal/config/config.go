// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or malformed, Load returns an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the ingest service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string // optional: enables the scheduler lock and run events
	DBMaxConns  int32

	// Scheduling intervals per task type.
	ScrapeInterval    time.Duration
	AffiliateInterval time.Duration
	ArticleInterval   time.Duration

	// CronSpec enables the in-process timer (e.g. "@every 15m"). Empty means
	// the service only runs when the external trigger endpoint is called.
	CronSpec string
	// RunBudget bounds one trigger invocation (serverless-style deadline).
	RunBudget time.Duration
	// LockTTL bounds how long a task lock survives a crashed holder.
	LockTTL time.Duration

	ScrapeFetchTimeout    time.Duration
	AffiliateFetchTimeout time.Duration
	MaxCandidates         int
	SourceWorkers         int
	UserAgent             string

	// ArticleEndpoint is the external article-generation job. Empty disables the task.
	ArticleEndpoint string
	ArticleTimeout  time.Duration
	CronSecret      string
	SourcesFile     string

	// AdminJWTSecret switches the admin routes from gateway identity headers
	// to HS256 bearer tokens signed with this secret.
	AdminJWTSecret string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		Port:            envString("INGEST_PORT", "8083"),
		DatabaseURL:     dbURL,
		RedisURL:        os.Getenv("REDIS_URL"),
		CronSpec:        os.Getenv("CRON_SPEC"),
		UserAgent:       envString("FETCH_USER_AGENT", defaultUserAgent),
		ArticleEndpoint: os.Getenv("ARTICLE_ENDPOINT"),
		CronSecret:      os.Getenv("CRON_SECRET"),
		SourcesFile:     os.Getenv("SOURCES_FILE"),
		AdminJWTSecret:  os.Getenv("ADMIN_JWT_SECRET"),
	}
	if cfg.AdminJWTSecret != "" && len(cfg.AdminJWTSecret) < 32 {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes")
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"SCRAPE_INTERVAL", 6 * time.Hour, &cfg.ScrapeInterval},
		{"AFFILIATE_INTERVAL", 24 * time.Hour, &cfg.AffiliateInterval},
		{"ARTICLE_INTERVAL", 24 * time.Hour, &cfg.ArticleInterval},
		{"RUN_BUDGET", 5 * time.Minute, &cfg.RunBudget},
		{"LOCK_TTL", 15 * time.Minute, &cfg.LockTTL},
		{"SCRAPE_FETCH_TIMEOUT", 15 * time.Second, &cfg.ScrapeFetchTimeout},
		{"AFFILIATE_FETCH_TIMEOUT", 30 * time.Second, &cfg.AffiliateFetchTimeout},
		{"ARTICLE_TIMEOUT", 60 * time.Second, &cfg.ArticleTimeout},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	// A task lock has to outlive the run it guards.
	if cfg.LockTTL <= cfg.RunBudget {
		return nil, fmt.Errorf("LOCK_TTL (%s) must be longer than RUN_BUDGET (%s)", cfg.LockTTL, cfg.RunBudget)
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"MAX_CANDIDATES", 50, &cfg.MaxCandidates},
		{"SOURCE_WORKERS", 1, &cfg.SourceWorkers},
	}
	for _, n := range ints {
		v, err := envPositiveInt(n.key, n.def)
		if err != nil {
			return nil, err
		}
		*n.dst = v
	}

	maxConns, err := envPositiveInt("DB_MAX_CONNS", 8)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns)

	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 6h, 90s), got %q", key, s)
	}
	return v, nil
}

func envPositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}
