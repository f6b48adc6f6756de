// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Snapshot sinks.
const (
	SinkLocal  = "local"
	SinkGCS    = "gcs"
	SinkMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig      `mapstructure:"server"`
	Crawler CrawlerConfig     `mapstructure:"crawler"`
	Store   StoreConfig       `mapstructure:"store"`
	Export  ExportConfig      `mapstructure:"export"`
	PubSub  PubSubConfig      `mapstructure:"pubsub"`
	Logging LoggingConfig     `mapstructure:"logging"`
	Targets []playlist.Target `mapstructure:"targets"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	Port                  int  `mapstructure:"port"`
	RequestTimeoutSeconds int  `mapstructure:"request_timeout_seconds"`
}

// CrawlerConfig governs crawl passes and scheduling.
type CrawlerConfig struct {
	UserAgent              string  `mapstructure:"user_agent"`
	RespectRobots          bool    `mapstructure:"respect_robots"`
	DelaySeconds           float64 `mapstructure:"delay_seconds"`
	TimeoutSeconds         int     `mapstructure:"timeout_seconds"`
	MaxPagesDefault        int     `mapstructure:"max_pages_default"`
	PollingIntervalMinutes int     `mapstructure:"polling_interval_minutes"`
	Concurrency            int     `mapstructure:"concurrency"`
	BreakerFailures        uint32  `mapstructure:"breaker_failures"`
	BreakerCooldownSeconds int     `mapstructure:"breaker_cooldown_seconds"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Path     string `mapstructure:"path"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig selects where snapshot files are written.
type ExportConfig struct {
	Sink string `mapstructure:"sink"`
	// BaseDir is served read-only under /files when the sink is local.
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for snapshot notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LoadDotEnv loads environment variables from the given files, or ./.env when
// none are given. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLAYLIST")
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
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 1785)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "WUOG-Scraper/1.0")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.delay_seconds", 1)
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.max_pages_default", 1)
	v.SetDefault("crawler.polling_interval_minutes", 60)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.breaker_failures", 5)
	v.SetDefault("crawler.breaker_cooldown_seconds", 60)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "state/playlists.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("export.sink", SinkLocal)
	v.SetDefault("export.base_dir", "data")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.DelaySeconds < 0 {
		return fmt.Errorf("crawler.delay_seconds must be >= 0")
	}
	if c.Crawler.PollingIntervalMinutes <= 0 {
		return fmt.Errorf("crawler.polling_interval_minutes must be > 0")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Export.validate(); err != nil {
		return err
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("targets: duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	case DriverSQLite, DriverBadger:
		if s.Path == "" {
			return fmt.Errorf("store.path must be set for the %s driver", s.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of postgres, sqlite, badger, memory", s.Driver)
	}
	return nil
}

func (e ExportConfig) validate() error {
	switch e.Sink {
	case SinkLocal:
	case SinkGCS:
		if e.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set for the gcs sink")
		}
	case SinkMemory:
	default:
		return fmt.Errorf("export.sink %q is not one of local, gcs, memory", e.Sink)
	}
	return nil
}

// Delay converts the politeness delay into a duration.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// Timeout converts the per-request timeout into a duration.
func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollingInterval converts the scheduling interval into a duration.
func (c CrawlerConfig) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMinutes) * time.Minute
}

// BreakerCooldown converts the breaker cooldown into a duration.
func (c CrawlerConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

// RequestTimeout converts the HTTP handler timeout into a duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}
