// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Fetcher implementations selectable with crawler.fetcher.
const (
	FetcherColly    = "colly"
	FetcherHTML     = "html"
	FetcherHeadless = "headless"
)

// Blob storage backends selectable with storage.backend.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Progress ProgressConfig `mapstructure:"progress"`
	Report   ReportConfig   `mapstructure:"report"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls the HTTP session API.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// CrawlerConfig governs the worker pool and how pages are fetched.
type CrawlerConfig struct {
	Workers               int     `mapstructure:"workers"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	UserAgent             string  `mapstructure:"user_agent"`
	Fetcher               string  `mapstructure:"fetcher"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second"`
	Burst                 int     `mapstructure:"burst"`
}

// HeadlessConfig configures the headless rendering fetcher.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// ProgressConfig selects the progress subscribers attached to the hub.
type ProgressConfig struct {
	SubscriberTimeoutSeconds int  `mapstructure:"subscriber_timeout_seconds"`
	Console                  bool `mapstructure:"console"`
	LogEvents                bool `mapstructure:"log_events"`
	Prometheus               bool `mapstructure:"prometheus"`
}

// ReportConfig controls the per-session text report.
type ReportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// StorageConfig selects where reports are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls result persistence. An empty DSN keeps results in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for session-finished notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig enables OpenTelemetry spans around fetcher calls.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from defaults, an optional file, and CRAWLER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	cfg.Crawler.Fetcher = strings.ToLower(strings.TrimSpace(cfg.Crawler.Fetcher))
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.request_timeout_seconds", 5)
	v.SetDefault("crawler.user_agent", "sitecrawler/0.1")
	v.SetDefault("crawler.fetcher", FetcherColly)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("progress.subscriber_timeout_seconds", 10)
	v.SetDefault("progress.console", true)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("progress.prometheus", true)
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.prefix", "")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local_dir", "reports")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "crawl-sessions")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "sitecrawler")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	switch c.Crawler.Fetcher {
	case FetcherColly, FetcherHTML, FetcherHeadless:
	default:
		return fmt.Errorf("crawler.fetcher must be one of colly, html, headless; got %q", c.Crawler.Fetcher)
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	if c.Progress.SubscriberTimeoutSeconds <= 0 {
		return fmt.Errorf("progress.subscriber_timeout_seconds must be > 0")
	}
	if c.Report.Enabled {
		switch c.Storage.Backend {
		case StorageLocal:
			if strings.TrimSpace(c.Storage.LocalDir) == "" {
				return fmt.Errorf("storage.local_dir is required for the local backend")
			}
		case StorageGCS:
			if strings.TrimSpace(c.Storage.GCSBucket) == "" {
				return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
			}
		case StorageMemory:
		default:
			return fmt.Errorf("storage.backend must be one of local, gcs, memory; got %q", c.Storage.Backend)
		}
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name is required when pubsub.project_id is set")
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1) {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// RequestTimeout bounds each probe and fetch.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// SubscriberTimeout bounds each progress subscriber callback.
func (c Config) SubscriberTimeout() time.Duration {
	return time.Duration(c.Progress.SubscriberTimeoutSeconds) * time.Second
}

// NavTimeout bounds a headless navigation.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
