// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/booktrail/release-crawler/internal/classify"
	"github.com/booktrail/release-crawler/internal/scheduler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Classifier classify.Config  `mapstructure:"classifier"`
	Scheduler  scheduler.Config `mapstructure:"scheduler"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetcherConfig governs static page fetching.
type FetcherConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerDomainRPS   float64 `mapstructure:"per_domain_rps"`
	Burst          int     `mapstructure:"burst"`
}

// RendererConfig configures the headless rendering subsystem.
type RendererConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs     int  `mapstructure:"settle_delay_ms"`
}

// ScraperConfig governs orchestration pacing between authors and sources.
type ScraperConfig struct {
	CooldownMinutes  int    `mapstructure:"cooldown_minutes"`
	MinDelaySeconds  int    `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds  int    `mapstructure:"max_delay_seconds"`
	ValidateDelayMs  int    `mapstructure:"validate_delay_ms"`
	DiscoveredTopic  string `mapstructure:"discovered_topic"`
	SnapshotsEnabled bool   `mapstructure:"snapshots_enabled"`
}

// StorageConfig sets paths and content types for snapshot persistence.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// the service on in-memory stores.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELEASECRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetcher.user_agent", "booktrail-release-bot/0.1")
	v.SetDefault("fetcher.timeout_seconds", 15)
	v.SetDefault("fetcher.per_domain_rps", 1.0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("renderer.enabled", false)
	v.SetDefault("renderer.nav_timeout_seconds", 30)
	v.SetDefault("renderer.settle_delay_ms", 3000)
	v.SetDefault("scraper.cooldown_minutes", 60)
	v.SetDefault("scraper.min_delay_seconds", 2)
	v.SetDefault("scraper.max_delay_seconds", 5)
	v.SetDefault("scraper.validate_delay_ms", 1000)
	v.SetDefault("scraper.discovered_topic", "release-discovered")
	v.SetDefault("scraper.snapshots_enabled", false)
	defaults := classify.DefaultConfig()
	v.SetDefault("classifier.high_signal_weight", defaults.HighSignalWeight)
	v.SetDefault("classifier.medium_signal_weight", defaults.MediumSignalWeight)
	v.SetDefault("classifier.multi_term_bonus", defaults.MultiTermBonus)
	v.SetDefault("classifier.date_pattern_bonus", defaults.DatePatternBonus)
	v.SetDefault("classifier.parsed_date_bonus", defaults.ParsedDateBonus)
	v.SetDefault("classifier.short_text_penalty", defaults.ShortTextPenalty)
	v.SetDefault("classifier.long_text_penalty", defaults.LongTextPenalty)
	v.SetDefault("classifier.min_text_length", defaults.MinTextLength)
	v.SetDefault("classifier.max_text_length", defaults.MaxTextLength)
	v.SetDefault("classifier.feed_threshold", defaults.FeedThreshold)
	v.SetDefault("classifier.candidate_threshold", defaults.CandidateThreshold)
	v.SetDefault("classifier.static_threshold", defaults.StaticThreshold)
	v.SetDefault("classifier.dynamic_threshold", defaults.DynamicThreshold)
	v.SetDefault("scheduler.daily_enabled", true)
	v.SetDefault("scheduler.weekly_enabled", true)
	v.SetDefault("scheduler.scraping_hours", []int{6, 14, 22})
	v.SetDefault("scheduler.max_concurrent_scrapes", 3)
	v.SetDefault("scheduler.respect_rate_limits", true)
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Scraper.CooldownMinutes < 0 {
		return fmt.Errorf("scraper.cooldown_minutes must be >= 0")
	}
	if c.Scraper.MaxDelaySeconds < c.Scraper.MinDelaySeconds {
		return fmt.Errorf("scraper.max_delay_seconds must be >= scraper.min_delay_seconds")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scraper.SnapshotsEnabled && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when snapshots are enabled")
	}
	for _, h := range c.Scheduler.ScrapingHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduler.scraping_hours must be within 0-23")
		}
	}
	return nil
}

// FetchTimeout returns the static fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// Cooldown returns the per-author scrape cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Scraper.CooldownMinutes) * time.Minute
}
