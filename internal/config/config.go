package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the periodic ticks.
type ScheduleConfig struct {
	EntityInterval string `yaml:"entity_interval"`
	SweepInterval  string `yaml:"sweep_interval"`
	AlertInterval  string `yaml:"alert_interval"`
}

// ParseEntityInterval returns the entity fetch tick as time.Duration.
func (s ScheduleConfig) ParseEntityInterval() time.Duration {
	return parseDuration(s.EntityInterval, 30*time.Minute)
}

// ParseSweepInterval returns the source sweep tick as time.Duration.
func (s ScheduleConfig) ParseSweepInterval() time.Duration {
	return parseDuration(s.SweepInterval, 2*time.Hour)
}

// ParseAlertInterval returns the alert scan tick as time.Duration.
func (s ScheduleConfig) ParseAlertInterval() time.Duration {
	return parseDuration(s.AlertInterval, time.Hour)
}

// IngestConfig configures feeds and queue behavior.
type IngestConfig struct {
	SearchFeedURL string       `yaml:"search_feed_url"`
	SweepSources  []SweepEntry `yaml:"sweep_sources"`
	MaxSweepAge   string       `yaml:"max_sweep_age"`
	ContextTerms  []string     `yaml:"context_terms"`
	EntityWorkers int          `yaml:"entity_workers"`
	SweepWorkers  int          `yaml:"sweep_workers"`
	JobsPerMinute int          `yaml:"jobs_per_minute"`
	FetchTimeout  string       `yaml:"fetch_timeout"`
	RetryAttempts int          `yaml:"retry_attempts"`
	RetryBackoff  string       `yaml:"retry_backoff"`
}

// ParseMaxSweepAge returns the source sweep max item age.
func (i IngestConfig) ParseMaxSweepAge() time.Duration {
	return parseDuration(i.MaxSweepAge, 48*time.Hour)
}

// ParseFetchTimeout returns the per-fetch network timeout.
func (i IngestConfig) ParseFetchTimeout() time.Duration {
	return parseDuration(i.FetchTimeout, 10*time.Second)
}

// ParseRetryBackoff returns the exponential backoff base between attempts.
func (i IngestConfig) ParseRetryBackoff() time.Duration {
	return parseDuration(i.RetryBackoff, 5*time.Second)
}

// SweepEntry is one fixed RSS source.
type SweepEntry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SentimentConfig configures the external scoring collaborator.
type SentimentConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// ParseTimeout returns the sentiment call timeout.
func (s SentimentConfig) ParseTimeout() time.Duration {
	return parseDuration(s.Timeout, 10*time.Second)
}

// MonitorConfig configures activation and attribution behavior.
type MonitorConfig struct {
	GeoTopN         int   `yaml:"geo_top_n"`
	FallbackGeoUnit int64 `yaml:"fallback_geo_unit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./newspulse.db"},
		Schedule: ScheduleConfig{
			EntityInterval: "30m",
			SweepInterval:  "2h",
			AlertInterval:  "1h",
		},
		Ingest: IngestConfig{
			SearchFeedURL: "https://news.google.com/rss/search",
			SweepSources: []SweepEntry{
				{Name: "National Wire", URL: "https://news.google.com/rss"},
			},
			MaxSweepAge:   "48h",
			EntityWorkers: 3,
			SweepWorkers:  2,
			JobsPerMinute: 10,
			FetchTimeout:  "10s",
			RetryAttempts: 3,
			RetryBackoff:  "5s",
		},
		Sentiment: SentimentConfig{
			URL:     "http://localhost:9090/analyze",
			Timeout: "10s",
		},
		Monitor: MonitorConfig{
			GeoTopN:         5,
			FallbackGeoUnit: 1,
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEWSPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NEWSPULSE_SEARCH_FEED_URL"); v != "" {
		cfg.Ingest.SearchFeedURL = v
	}
	if v := os.Getenv("SENTIMENT_API_URL"); v != "" {
		cfg.Sentiment.URL = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
