package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
targets:
  - name: WUOG Automation
    url: https://spinitron.com/WUOG
    export_folder: exports
    consolidation: monthly
`

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
crawler:
  user_agent: archive-bot/2.0
  delay_seconds: 0.5
  timeout_seconds: 30
  max_pages_default: 2
  polling_interval_minutes: 15
  concurrency: 3
  breaker_failures: 7
  breaker_cooldown_seconds: 120
store:
  driver: postgres
  dsn: postgres://radio@localhost/radio
  max_conns: 8
export:
  sink: gcs
  gcs_bucket: playlists
  gcs_prefix: snapshots
pubsub:
  project_id: radio
  topic_name: snapshots
logging:
  development: false
targets:
  - name: WUOG
    url: https://spinitron.com/WUOG
    export_folder: exports/wuog
    consolidation: seasonal
    time_filter:
      start_hour: 7
      end_hour: 22
  - name: WRAS
    url: https://spinitron.com/WRAS
    consolidation: none
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "archive-bot/2.0", cfg.Crawler.UserAgent)
	assert.Equal(t, 500*time.Millisecond, cfg.Crawler.Delay())
	assert.Equal(t, 30*time.Second, cfg.Crawler.Timeout())
	assert.Equal(t, 15*time.Minute, cfg.Crawler.PollingInterval())
	assert.Equal(t, 2*time.Minute, cfg.Crawler.BreakerCooldown())
	assert.EqualValues(t, 7, cfg.Crawler.BreakerFailures)
	assert.Equal(t, 3, cfg.Crawler.Concurrency)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.EqualValues(t, 8, cfg.Store.MaxConns)
	assert.Equal(t, SinkGCS, cfg.Export.Sink)
	assert.Equal(t, "snapshots", cfg.Export.GCSPrefix)
	assert.Equal(t, "snapshots", cfg.PubSub.TopicName)
	assert.False(t, cfg.Logging.Development)

	require.Len(t, cfg.Targets, 2)
	wuog := cfg.Targets[0]
	assert.Equal(t, "https://spinitron.com/WUOG", wuog.BaseURL)
	assert.Equal(t, playlist.ConsolidationSeasonal, wuog.Consolidation)
	require.NotNil(t, wuog.TimeFilter)
	assert.Equal(t, playlist.TimeFilter{StartHour: 7, EndHour: 22}, *wuog.TimeFilter)
	assert.Nil(t, cfg.Targets[1].TimeFilter)
	assert.Equal(t, playlist.ConsolidationNone, cfg.Targets[1].Consolidation)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 1785, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, "WUOG-Scraper/1.0", cfg.Crawler.UserAgent)
	assert.Equal(t, time.Second, cfg.Crawler.Delay())
	assert.Equal(t, 1, cfg.Crawler.MaxPagesDefault)
	assert.Equal(t, time.Hour, cfg.Crawler.PollingInterval())
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "state/playlists.db", cfg.Store.Path)
	assert.Equal(t, SinkLocal, cfg.Export.Sink)
	assert.Equal(t, "data", cfg.Export.BaseDir)
	assert.True(t, cfg.Logging.Development)
}

// Environment variables are process-wide, so this test does not run in parallel.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLAYLIST_CRAWLER_USER_AGENT", "env-agent/1.0")
	t.Setenv("PLAYLIST_STORE_DRIVER", "badger")
	t.Setenv("PLAYLIST_STORE_PATH", "/var/lib/radio/badger")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-agent/1.0", cfg.Crawler.UserAgent)
	assert.Equal(t, DriverBadger, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/radio/badger", cfg.Store.Path)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PLAYLIST_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PLAYLIST_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("PLAYLIST_DOTENV_PROBE"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one target")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Enabled: true, Port: 8080},
		Crawler: CrawlerConfig{Concurrency: 1, TimeoutSeconds: 10, PollingIntervalMinutes: 60},
		Store:   StoreConfig{Driver: DriverMemory},
		Export:  ExportConfig{Sink: SinkMemory},
		Targets: []playlist.Target{{
			Name:          "WUOG",
			BaseURL:       "https://spinitron.com/WUOG",
			ExportFolder:  "exports",
			Consolidation: playlist.ConsolidationMonthly,
		}},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Crawler.TimeoutSeconds = 0 }, want: "crawler.timeout_seconds"},
		{name: "negative delay", mutate: func(c *Config) { c.Crawler.DelaySeconds = -1 }, want: "crawler.delay_seconds"},
		{name: "invalid interval", mutate: func(c *Config) { c.Crawler.PollingIntervalMinutes = 0 }, want: "polling_interval"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, want: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = DriverPostgres }, want: "store.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Driver = DriverSQLite }, want: "store.path"},
		{name: "unknown sink", mutate: func(c *Config) { c.Export.Sink = "s3" }, want: "export.sink"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Export.Sink = SinkGCS }, want: "export.gcs_bucket"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "snapshots" }, want: "pubsub.project_id"},
		{name: "no targets", mutate: func(c *Config) { c.Targets = nil }, want: "at least one target"},
		{
			name:   "invalid target",
			mutate: func(c *Config) { c.Targets = []playlist.Target{{Name: "x", BaseURL: "u", Consolidation: "weekly"}} },
			want:   "unknown consolidation",
		},
		{
			name:   "duplicate target",
			mutate: func(c *Config) { c.Targets = append(c.Targets, c.Targets[0]) },
			want:   "duplicate target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Targets = append([]playlist.Target(nil), base.Targets...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
