// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	DB        DBConfig        `mapstructure:"db"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SiteConfig points the scraper at the source site.
type SiteConfig struct {
	ListingURL   string `mapstructure:"listing_url"`
	UserAgent    string `mapstructure:"user_agent"`
	IgnoreRobots bool   `mapstructure:"ignore_robots"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// CacheConfig controls the fetch cache backend and freshness window.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // "disk", "memory", or "off"
	Dir        string `mapstructure:"dir"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

// RateLimitConfig bounds outbound request rate against the source site.
type RateLimitConfig struct {
	CallsPerSecond float64 `mapstructure:"calls_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// PipelineConfig governs run coordination behavior.
type PipelineConfig struct {
	FetchConcurrency int     `mapstructure:"fetch_concurrency"`
	StageRetries     int     `mapstructure:"stage_retries"`
	MergeRetries     int     `mapstructure:"merge_retries"`
	MinCompleteness  float64 `mapstructure:"min_completeness"`
}

// DBConfig controls access to the analytical store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MainTable    string `mapstructure:"main_table"`
	StagingTable string `mapstructure:"staging_table"`
	MaxConns     int32  `mapstructure:"max_conns"`
}

// MetricsConfig optionally exposes Prometheus metrics during a run.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOVIES")
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
	v.SetDefault("site.listing_url", "https://gratistorrent.com/lancamentos/")
	v.SetDefault("site.user_agent", "torrent-movies-etl/0.1")
	v.SetDefault("site.ignore_robots", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("cache.backend", "disk")
	v.SetDefault("cache.dir", "./page_cache")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("rate_limit.calls_per_second", 5)
	v.SetDefault("rate_limit.burst", 1)
	v.SetDefault("pipeline.fetch_concurrency", 1)
	v.SetDefault("pipeline.stage_retries", 2)
	v.SetDefault("pipeline.merge_retries", 3)
	v.SetDefault("pipeline.min_completeness", 0)
	v.SetDefault("db.main_table", "movies")
	v.SetDefault("db.staging_table", "movies_staging")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.ListingURL == "" {
		return fmt.Errorf("site.listing_url must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	switch c.Cache.Backend {
	case "disk", "memory", "off":
	default:
		return fmt.Errorf("cache.backend must be disk, memory, or off")
	}
	if c.Cache.Backend == "disk" && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set when cache.backend is disk")
	}
	if c.Pipeline.FetchConcurrency <= 0 {
		return fmt.Errorf("pipeline.fetch_concurrency must be > 0")
	}
	if c.Pipeline.MinCompleteness < 0 || c.Pipeline.MinCompleteness > 1 {
		return fmt.Errorf("pipeline.min_completeness must be within [0, 1]")
	}
	return nil
}

// HTTPTimeout converts the configured timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CacheTTL converts the configured cache freshness window into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// BackoffInitial returns the initial retry backoff delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry backoff ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
