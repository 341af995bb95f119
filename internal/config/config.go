// Package config handles application configuration from an optional YAML
// file overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"gopkg.in/yaml.v3"

	"news_digest/internal/fetcher"
	"news_digest/internal/preference"
	"news_digest/internal/ranker"
	"news_digest/internal/summarizer"
)

const defaultTimezone = "Asia/Shanghai"

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string  `yaml:"telegram_bot_token"`
	DatabasePath     string  `yaml:"database_path"`
	LogLevel         string  `yaml:"log_level"`
	AllowedUsers     []int64 `yaml:"allowed_users"`
	HTTPAddr         string  `yaml:"http_addr"`
	SourcesFile      string  `yaml:"sources_file"`
	Timezone         string  `yaml:"timezone"`

	FreshnessWindowHours float64 `yaml:"freshness_window_hours"`
	WFreshness           float64 `yaml:"w_freshness"`
	WSource              float64 `yaml:"w_source"`
	WMatch               float64 `yaml:"w_match"`
	SourceWeightScale    float64 `yaml:"source_weight_scale"`
	CandidateWindowHours int     `yaml:"candidate_window_hours"`
	DailyLimitTiers      []int   `yaml:"daily_limit_tiers"`

	SummaryBackend string `yaml:"summary_backend"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	GeminiModel    string `yaml:"gemini_model"`

	FetchIntervalMinutes int  `yaml:"fetch_interval_minutes"`
	MinRequestIntervalMS int  `yaml:"min_request_interval_ms"`
	HTTPTimeoutSeconds   int  `yaml:"http_timeout_seconds"`
	HTTPMaxRetries       int  `yaml:"http_max_retries"`
	ExtractFullText      bool `yaml:"extract_full_text"`

	location *time.Location
}

func defaults() *Config {
	r := ranker.DefaultParams()
	return &Config{
		DatabasePath:         "./data/news.db",
		LogLevel:             "info",
		HTTPAddr:             ":8080",
		SourcesFile:          "./sources.yaml",
		Timezone:             defaultTimezone,
		FreshnessWindowHours: r.FreshnessWindowHours,
		WFreshness:           r.WFreshness,
		WSource:              r.WSource,
		WMatch:               r.WMatch,
		SourceWeightScale:    r.SourceWeightScale,
		CandidateWindowHours: 72,
		DailyLimitTiers:      append([]int(nil), preference.DefaultTiers...),
		SummaryBackend:       summarizer.BackendFallback,
		GeminiModel:          summarizer.DefaultGeminiModel,
		FetchIntervalMinutes: 60,
		MinRequestIntervalMS: 1000,
		HTTPTimeoutSeconds:   30,
		HTTPMaxRetries:       3,
		ExtractFullText:      true,
	}
}

// Load reads the YAML file named by CONFIG_PATH, when set, and then applies
// environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.SourcesFile, "SOURCES_FILE")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.SummaryBackend, "SUMMARY_BACKEND")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.GeminiModel, "GEMINI_MODEL")

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		users, err := parseInts64(raw)
		if err != nil {
			return fmt.Errorf("invalid ALLOWED_USERS: %w", err)
		}
		c.AllowedUsers = users
	}
	if raw := os.Getenv("DAILY_LIMIT_TIERS"); raw != "" {
		tiers, err := parseInts64(raw)
		if err != nil {
			return fmt.Errorf("invalid DAILY_LIMIT_TIERS: %w", err)
		}
		c.DailyLimitTiers = c.DailyLimitTiers[:0]
		for _, t := range tiers {
			c.DailyLimitTiers = append(c.DailyLimitTiers, int(t))
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"FRESHNESS_WINDOW_HOURS", &c.FreshnessWindowHours},
		{"W_FRESHNESS", &c.WFreshness},
		{"W_SOURCE", &c.WSource},
		{"W_MATCH", &c.WMatch},
		{"SOURCE_WEIGHT_SCALE", &c.SourceWeightScale},
	}
	for _, f := range floats {
		if raw := os.Getenv(f.key); raw != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", f.key, raw, err)
			}
			*f.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CANDIDATE_WINDOW_HOURS", &c.CandidateWindowHours},
		{"FETCH_INTERVAL_MINUTES", &c.FetchIntervalMinutes},
		{"MIN_REQUEST_INTERVAL_MS", &c.MinRequestIntervalMS},
		{"HTTP_TIMEOUT_SECONDS", &c.HTTPTimeoutSeconds},
		{"HTTP_MAX_RETRIES", &c.HTTPMaxRetries},
	}
	for _, f := range ints {
		if raw := os.Getenv(f.key); raw != "" {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", f.key, raw, err)
			}
			*f.dst = v
		}
	}

	if raw := os.Getenv("EXTRACT_FULL_TEXT"); raw != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid EXTRACT_FULL_TEXT %q: %w", raw, err)
		}
		c.ExtractFullText = v
	}
	return nil
}

func (c *Config) validate() error {
	switch c.SummaryBackend {
	case summarizer.BackendFallback:
	case summarizer.BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for summary backend %q", c.SummaryBackend)
		}
	default:
		return fmt.Errorf("unknown SUMMARY_BACKEND %q", c.SummaryBackend)
	}
	if len(c.DailyLimitTiers) == 0 {
		return fmt.Errorf("DAILY_LIMIT_TIERS must not be empty")
	}
	for _, t := range c.DailyLimitTiers {
		if t <= 0 {
			return fmt.Errorf("daily limit tier %d must be positive", t)
		}
	}
	if c.CandidateWindowHours <= 0 {
		return fmt.Errorf("CANDIDATE_WINDOW_HOURS must be positive")
	}
	if c.FetchIntervalMinutes <= 0 {
		return fmt.Errorf("FETCH_INTERVAL_MINUTES must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseInts64(raw string) ([]int64, error) {
	var out []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Location returns the zone used for day boundaries and push times.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// RankerParams returns the scoring parameters.
func (c *Config) RankerParams() ranker.Params {
	p := ranker.DefaultParams()
	p.FreshnessWindowHours = c.FreshnessWindowHours
	p.WFreshness = c.WFreshness
	p.WSource = c.WSource
	p.WMatch = c.WMatch
	p.SourceWeightScale = c.SourceWeightScale
	return p
}

// FetcherOptions returns the outbound HTTP client settings.
func (c *Config) FetcherOptions() fetcher.Options {
	retries := c.HTTPMaxRetries
	if retries == 0 {
		retries = -1
	}
	return fetcher.Options{
		MinInterval: time.Duration(c.MinRequestIntervalMS) * time.Millisecond,
		Timeout:     time.Duration(c.HTTPTimeoutSeconds) * time.Second,
		MaxRetries:  retries,
	}
}

// FetchInterval returns how often sources are polled.
func (c *Config) FetchInterval() time.Duration {
	return time.Duration(c.FetchIntervalMinutes) * time.Minute
}

// CandidateWindow returns how far back candidate items are considered.
func (c *Config) CandidateWindow() time.Duration {
	return time.Duration(c.CandidateWindowHours) * time.Hour
}
