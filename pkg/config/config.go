package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for zester
type Config struct {
	SoundCloud SoundCloudConfig `yaml:"soundcloud" json:"soundcloud"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Archive    ArchiveConfig    `yaml:"archive" json:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SoundCloudConfig holds API access settings. OAuthToken and ClientID are
// optional here; the credential store is consulted when they are empty.
type SoundCloudConfig struct {
	OAuthToken     string        `yaml:"oauth_token" json:"oauth_token"`
	ClientID       string        `yaml:"client_id" json:"client_id"`
	UserID         int64         `yaml:"user_id" json:"user_id"`
	Account        string        `yaml:"account" json:"account"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	PageSize       int           `yaml:"page_size" json:"page_size"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RateLimitConfig sizes the request budget
type RateLimitConfig struct {
	Requests  int           `yaml:"requests" json:"requests"`
	Window    time.Duration `yaml:"window" json:"window"`
	Burst     int           `yaml:"burst" json:"burst"`
	MaxWait   time.Duration `yaml:"max_wait" json:"max_wait"`
	Algorithm string        `yaml:"algorithm" json:"algorithm"`
	// Scope is "global" (one budget for all crawls) or "per_collection"
	Scope     string `yaml:"scope" json:"scope"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	RedisKey  string `yaml:"redis_key" json:"redis_key"`
}

// RetryConfig controls retries of transient failures
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier    float64       `yaml:"multiplier" json:"multiplier"`
	Jitter        float64       `yaml:"jitter" json:"jitter"`
	MaxRetryAfter time.Duration `yaml:"max_retry_after" json:"max_retry_after"`
}

// OutputConfig holds snapshot output settings
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	Format    string `yaml:"format" json:"format"`
	Overwrite bool   `yaml:"overwrite" json:"overwrite"`
}

// ArchiveConfig selects what a run archives and how
type ArchiveConfig struct {
	Collections []string      `yaml:"collections" json:"collections"`
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	PageDelay   time.Duration `yaml:"page_delay" json:"page_delay"`
	// ExpandPlaylists fetches every playlist in full after the playlists crawl
	ExpandPlaylists bool `yaml:"expand_playlists" json:"expand_playlists"`
	// Audio downloads the audio of liked tracks after the likes snapshot
	Audio bool `yaml:"audio" json:"audio"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SoundCloud: SoundCloudConfig{
			BaseURL:        "https://api-v2.soundcloud.com",
			UserAgent:      "zester/1.0",
			PageSize:       200,
			RequestTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests:  30,
			Window:    time.Minute,
			Burst:     1,
			MaxWait:   2 * time.Minute,
			Algorithm: "sliding_window",
			Scope:     "global",
			RedisKey:  "zester:ratelimit",
		},
		Retry: RetryConfig{
			MaxAttempts:   5,
			InitialDelay:  2 * time.Second,
			MaxDelay:      time.Minute,
			Multiplier:    2.0,
			Jitter:        0.2,
			MaxRetryAfter: 5 * time.Minute,
		},
		Output: OutputConfig{
			Directory: "./archive",
			Format:    "json",
		},
		Archive: ArchiveConfig{
			Collections: []string{"likes", "playlists", "comments"},
			Concurrency:     3,
			PageDelay:       2 * time.Second,
			ExpandPlaylists: true,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv applies ZESTER_* environment overrides
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString(&c.SoundCloud.OAuthToken, "ZESTER_OAUTH_TOKEN")
	setString(&c.SoundCloud.ClientID, "ZESTER_CLIENT_ID")
	setString(&c.SoundCloud.Account, "ZESTER_ACCOUNT")
	setString(&c.SoundCloud.BaseURL, "ZESTER_BASE_URL")
	setString(&c.SoundCloud.UserAgent, "ZESTER_USER_AGENT")
	errs = append(errs, setInt64(&c.SoundCloud.UserID, "ZESTER_USER_ID"))
	errs = append(errs, setInt(&c.SoundCloud.PageSize, "ZESTER_PAGE_SIZE"))
	errs = append(errs, setDuration(&c.SoundCloud.RequestTimeout, "ZESTER_REQUEST_TIMEOUT"))

	errs = append(errs, setInt(&c.RateLimit.Requests, "ZESTER_RATE_LIMIT_REQUESTS"))
	errs = append(errs, setDuration(&c.RateLimit.Window, "ZESTER_RATE_LIMIT_WINDOW"))
	errs = append(errs, setDuration(&c.RateLimit.MaxWait, "ZESTER_RATE_LIMIT_MAX_WAIT"))
	setString(&c.RateLimit.Algorithm, "ZESTER_RATE_LIMIT_ALGORITHM")
	setString(&c.RateLimit.Scope, "ZESTER_RATE_LIMIT_SCOPE")
	setString(&c.RateLimit.RedisAddr, "ZESTER_REDIS_ADDR")

	errs = append(errs, setInt(&c.Retry.MaxAttempts, "ZESTER_RETRY_MAX_ATTEMPTS"))

	setString(&c.Output.Directory, "ZESTER_OUTPUT_DIR")
	setString(&c.Output.Format, "ZESTER_OUTPUT_FORMAT")

	if v := os.Getenv("ZESTER_COLLECTIONS"); v != "" {
		c.Archive.Collections = splitList(v)
	}
	errs = append(errs, setInt(&c.Archive.Concurrency, "ZESTER_CONCURRENCY"))
	errs = append(errs, setDuration(&c.Archive.PageDelay, "ZESTER_PAGE_DELAY"))
	errs = append(errs, setBool(&c.Archive.ExpandPlaylists, "ZESTER_EXPAND_PLAYLISTS"))
	errs = append(errs, setBool(&c.Archive.Audio, "ZESTER_AUDIO"))

	if v := os.Getenv("ZESTER_METRICS_ADDR"); v != "" {
		c.Metrics.Address = v
		c.Metrics.Enabled = true
	}

	setString(&c.Logging.Level, "ZESTER_LOG_LEVEL")
	setString(&c.Logging.Format, "ZESTER_LOG_FORMAT")
	setString(&c.Logging.File, "ZESTER_LOG_FILE")

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile returns the first existing config file in the standard
// locations, or "".
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".zester.yaml",
		".zester.yml",
		filepath.Join(home, ".config", "zester", "config.yaml"),
		filepath.Join(home, ".config", "zester", "config.yml"),
		filepath.Join(home, ".zester.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// DefaultConfigPath is where `config init` writes
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "zester", "config.yaml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.SoundCloud.BaseURL == "" {
		errs = append(errs, errors.New("soundcloud base url is required"))
	}
	if c.SoundCloud.PageSize <= 0 || c.SoundCloud.PageSize > 500 {
		errs = append(errs, errors.New("page size must be between 1 and 500"))
	}
	if c.SoundCloud.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	switch c.RateLimit.Algorithm {
	case "none":
	case "sliding_window", "token_bucket", "redis":
		if c.RateLimit.Requests <= 0 {
			errs = append(errs, errors.New("rate limit requests must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate limit window must be positive"))
		}
		if c.RateLimit.Algorithm == "redis" && c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("redis rate limiting requires redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid rate limit algorithm: %s", c.RateLimit.Algorithm))
	}
	if c.RateLimit.MaxWait <= 0 {
		errs = append(errs, errors.New("rate limit max wait must be positive"))
	}
	if c.RateLimit.Scope != "global" && c.RateLimit.Scope != "per_collection" {
		errs = append(errs, fmt.Errorf("invalid rate limit scope: %s", c.RateLimit.Scope))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("retry jitter must be between 0 and 1"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "yaml", "ndjson":
	default:
		errs = append(errs, fmt.Errorf("invalid output format: %s", c.Output.Format))
	}

	if len(c.Archive.Collections) == 0 {
		errs = append(errs, errors.New("at least one collection is required"))
	}
	for _, kind := range c.Archive.Collections {
		switch kind {
		case "likes", "playlists", "comments":
		default:
			errs = append(errs, fmt.Errorf("unknown collection: %s", kind))
		}
	}
	if c.Archive.Concurrency <= 0 || c.Archive.Concurrency > 10 {
		errs = append(errs, errors.New("concurrency must be between 1 and 10"))
	}
	if c.Archive.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML, creating parent directories
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags applies flag values set on the command line
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["account"].(string); ok && v != "" {
		c.SoundCloud.Account = v
	}
	if v, ok := flags["user-id"].(int64); ok && v > 0 {
		c.SoundCloud.UserID = v
	}
	if v, ok := flags["page-size"].(int); ok && v > 0 {
		c.SoundCloud.PageSize = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["overwrite"].(bool); ok && v {
		c.Output.Overwrite = true
	}
	if v, ok := flags["collections"].([]string); ok && len(v) > 0 {
		c.Archive.Collections = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Archive.Concurrency = v
	}
	if v, ok := flags["page-delay"].(time.Duration); ok && v >= 0 {
		c.Archive.PageDelay = v
	}
	if v, ok := flags["no-expand"].(bool); ok && v {
		c.Archive.ExpandPlaylists = false
	}
	if v, ok := flags["audio"].(bool); ok && v {
		c.Archive.Audio = true
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.Requests = v
	}
	if v, ok := flags["redis-addr"].(string); ok && v != "" {
		c.RateLimit.RedisAddr = v
		c.RateLimit.Algorithm = "redis"
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Address = v
		c.Metrics.Enabled = true
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (including .env files) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	home := os.Getenv("HOME")
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(home, ".zester.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
