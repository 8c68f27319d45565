package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api-v2.soundcloud.com", cfg.SoundCloud.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.SoundCloud.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Archive.PageDelay)
	assert.Equal(t, []string{"likes", "playlists", "comments"}, cfg.Archive.Collections)
	assert.Equal(t, "global", cfg.RateLimit.Scope)
	assert.True(t, cfg.Archive.ExpandPlaylists)
	assert.False(t, cfg.Archive.Audio)
	assert.NoError(t, cfg.Validate(), "defaults must be valid")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZESTER_OAUTH_TOKEN", "2-123-abc")
	t.Setenv("ZESTER_CLIENT_ID", "client")
	t.Setenv("ZESTER_USER_ID", "42")
	t.Setenv("ZESTER_PAGE_SIZE", "50")
	t.Setenv("ZESTER_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("ZESTER_COLLECTIONS", "likes, comments")
	t.Setenv("ZESTER_OUTPUT_DIR", "/tmp/zester-test")
	t.Setenv("ZESTER_METRICS_ADDR", ":9100")
	t.Setenv("ZESTER_LOG_LEVEL", "debug")
	t.Setenv("ZESTER_EXPAND_PLAYLISTS", "false")
	t.Setenv("ZESTER_AUDIO", "1")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "2-123-abc", cfg.SoundCloud.OAuthToken)
	assert.Equal(t, "client", cfg.SoundCloud.ClientID)
	assert.Equal(t, int64(42), cfg.SoundCloud.UserID)
	assert.Equal(t, 50, cfg.SoundCloud.PageSize)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"likes", "comments"}, cfg.Archive.Collections)
	assert.Equal(t, "/tmp/zester-test", cfg.Output.Directory)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Archive.ExpandPlaylists)
	assert.True(t, cfg.Archive.Audio)
}

func TestLoadFromEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("ZESTER_PAGE_SIZE", "many")
	t.Setenv("ZESTER_PAGE_DELAY", "soon")
	t.Setenv("ZESTER_AUDIO", "maybe")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZESTER_PAGE_SIZE")
	assert.Contains(t, err.Error(), "ZESTER_PAGE_DELAY")
	assert.Contains(t, err.Error(), "ZESTER_AUDIO")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
soundcloud:
  user_id: 1234
  page_size: 100
  request_timeout: 15s
rate_limit:
  requests: 10
  window: 1m
  algorithm: token_bucket
output:
  directory: /srv/archive
  format: ndjson
archive:
  collections: [likes]
  page_delay: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, int64(1234), cfg.SoundCloud.UserID)
	assert.Equal(t, 100, cfg.SoundCloud.PageSize)
	assert.Equal(t, 15*time.Second, cfg.SoundCloud.RequestTimeout)
	assert.Equal(t, "token_bucket", cfg.RateLimit.Algorithm)
	assert.Equal(t, "ndjson", cfg.Output.Format)
	assert.Equal(t, []string{"likes"}, cfg.Archive.Collections)
	assert.Equal(t, 500*time.Millisecond, cfg.Archive.PageDelay)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadFromFileMissing(t *testing.T) {
	err := DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"page size too large", func(c *Config) { c.SoundCloud.PageSize = 1000 }, "page size"},
		{"unknown collection", func(c *Config) { c.Archive.Collections = []string{"reposts"} }, "unknown collection"},
		{"no collections", func(c *Config) { c.Archive.Collections = nil }, "at least one collection"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"redis without addr", func(c *Config) { c.RateLimit.Algorithm = "redis" }, "redis_addr"},
		{"bad scope", func(c *Config) { c.RateLimit.Scope = "shared" }, "scope"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max attempts"},
		{"negative page delay", func(c *Config) { c.Archive.PageDelay = -time.Second }, "page delay"},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Directory = ""
	cfg.Archive.Concurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output directory")
	assert.Contains(t, err.Error(), "concurrency")
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.SoundCloud.UserID = 99
	cfg.Archive.PageDelay = 3 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, int64(99), reloaded.SoundCloud.UserID)
	assert.Equal(t, 3*time.Second, reloaded.Archive.PageDelay)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"output":       "/data",
		"format":       "yaml",
		"collections":  []string{"playlists"},
		"concurrent":   2,
		"redis-addr":   "localhost:6379",
		"metrics-addr": ":9200",
		"page-delay":   time.Duration(0),
		"log-level":    "",
		"no-expand":    true,
		"audio":        true,
	})

	assert.Equal(t, "/data", cfg.Output.Directory)
	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.Equal(t, []string{"playlists"}, cfg.Archive.Collections)
	assert.Equal(t, 2, cfg.Archive.Concurrency)
	assert.Equal(t, "redis", cfg.RateLimit.Algorithm)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Archive.PageDelay)
	assert.Equal(t, "info", cfg.Logging.Level, "empty flag values are ignored")
	assert.False(t, cfg.Archive.ExpandPlaylists)
	assert.True(t, cfg.Archive.Audio)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  directory: /from/file\n  format: yaml\n"), 0644))
	t.Setenv("HOME", dir)
	t.Setenv("ZESTER_OUTPUT_DIR", "/from/env")

	cfg, err := Load(path, map[string]interface{}{"format": "ndjson"})
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Output.Directory)
	assert.Equal(t, "ndjson", cfg.Output.Format)
}
