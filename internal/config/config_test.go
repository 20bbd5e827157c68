package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
fetcher:
  user_agent: release-agent
  timeout_seconds: 45
  per_domain_rps: 0.5
  burst: 2
renderer:
  enabled: true
  nav_timeout_seconds: 20
  settle_delay_ms: 1500
scraper:
  cooldown_minutes: 30
  min_delay_seconds: 1
  max_delay_seconds: 3
  discovered_topic: releases
  snapshots_enabled: true
scheduler:
  daily_enabled: false
  scraping_hours: [7, 19]
  max_concurrent_scrapes: 5
storage:
  gcs_bucket: bucket
  prefix: pages
db:
  dsn: postgres://localhost/releases
pubsub:
  project_id: booktrail
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Fetcher.UserAgent != "release-agent" || cfg.Fetcher.PerDomainRPS != 0.5 {
		t.Fatalf("expected fetcher overrides to apply: %+v", cfg.Fetcher)
	}
	if !cfg.Renderer.Enabled || cfg.Renderer.SettleDelayMs != 1500 {
		t.Fatalf("expected renderer overrides to apply: %+v", cfg.Renderer)
	}
	if cfg.Scraper.DiscoveredTopic != "releases" {
		t.Fatalf("expected topic override, got %q", cfg.Scraper.DiscoveredTopic)
	}
	if cfg.Scheduler.DailyEnabled || len(cfg.Scheduler.ScrapingHours) != 2 {
		t.Fatalf("expected scheduler overrides to apply: %+v", cfg.Scheduler)
	}
	if cfg.DB.DSN != "postgres://localhost/releases" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected DSN override and pool defaults: %+v", cfg.DB)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.Cooldown(); got != 30*time.Minute {
		t.Fatalf("expected cooldown 30m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.DiscoveredTopic != "release-discovered" {
		t.Fatalf("expected default topic, got %q", cfg.Scraper.DiscoveredTopic)
	}
	if len(cfg.Scheduler.ScrapingHours) != 3 || cfg.Scheduler.MaxConcurrentScrapes != 3 {
		t.Fatalf("expected scheduler defaults: %+v", cfg.Scheduler)
	}
	if !cfg.Scheduler.RespectRateLimits {
		t.Fatalf("expected rate limits respected by default: %+v", cfg.Scheduler)
	}
	if cfg.DB.DSN != "" {
		t.Fatalf("expected empty DSN by default, got %q", cfg.DB.DSN)
	}
	if cfg.Classifier.StaticThreshold != 0.5 || cfg.Classifier.HighSignalWeight != 0.3 {
		t.Fatalf("expected classifier defaults: %+v", cfg.Classifier)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Fetcher: FetcherConfig{TimeoutSeconds: 10},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Fetcher.TimeoutSeconds = 0
				return c
			}(),
			want: "fetcher.timeout_seconds",
		},
		{
			name: "inverted jitter window",
			cfg: func() Config {
				c := base
				c.Scraper.MinDelaySeconds = 5
				c.Scraper.MaxDelaySeconds = 2
				return c
			}(),
			want: "scraper.max_delay_seconds",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "snapshots without bucket",
			cfg: func() Config {
				c := base
				c.Scraper.SnapshotsEnabled = true
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "scraping hour out of range",
			cfg: func() Config {
				c := base
				c.Scheduler.ScrapingHours = []int{25}
				return c
			}(),
			want: "scheduler.scraping_hours",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
