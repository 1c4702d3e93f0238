package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/marketbrief/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Runs        RunsConfig     `toml:"runs"`
	Breaker     BreakerConfig  `toml:"breaker"`
	Schedule    ScheduleConfig `toml:"schedule"`
	EODHD       EODHDConfig    `toml:"eodhd"`
	Filings     FilingsConfig  `toml:"filings"`
	Claude      ClaudeConfig   `toml:"claude"`
	PDF         PDFConfig      `toml:"pdf"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                      // "stdout", "file"
}

// RunsConfig controls the precompute fan-out: pool size, retry bounds,
// deadlines, and the freshness window that makes re-runs idempotent.
type RunsConfig struct {
	Symbols         []string `toml:"symbols"`                                   // Tracked tickers (EODHD format, e.g. "CBA.AU")
	Concurrency     int      `toml:"concurrency" validate:"gte=1"`              // Worker pool size
	MaxAttempts     int      `toml:"max_attempts" validate:"gte=0"`             // Additional attempts after the first (default 2)
	JobTimeout      string   `toml:"job_timeout" validate:"required"`           // Per-job deadline, e.g. "3m"
	RunTimeout      string   `toml:"run_timeout" validate:"required"`           // Run-level deadline, e.g. "30m"
	FreshnessWindow string   `toml:"freshness_window" validate:"required"`      // Max artifact age before recompute, e.g. "20h"
	InitialBackoff  string   `toml:"initial_backoff" validate:"required"`       // Backoff before first retry, e.g. "5s"
	BackoffFactor   float64  `toml:"backoff_factor" validate:"gte=1"`           // Exponential multiplier between retries
	RenderPDF       bool     `toml:"render_pdf"`                                // Attempt PDF rendering after text generation
	PDFDir          string   `toml:"pdf_dir" validate:"required_if=RenderPDF true"` // Directory for rendered PDFs
}

// BreakerConfig controls the per-dependency circuit breakers.
type BreakerConfig struct {
	FailureThreshold int    `toml:"failure_threshold" validate:"gte=1"` // Failures within the window that open the circuit
	Window           string `toml:"window" validate:"required"`         // Sliding window for failure counting, e.g. "1m"
	ResetTimeout     string `toml:"reset_timeout" validate:"required"`  // Open -> HalfOpen delay, e.g. "30s"
}

// ScheduleConfig controls the daily precompute trigger.
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // Cron expression, e.g. "0 30 6 * * *" (daily at 06:30)
}

// EODHDConfig contains EODHD market data API configuration
type EODHDConfig struct {
	APIKey         string `toml:"api_key"`                                  // EODHD API key (or via KV store / env)
	BaseURL        string `toml:"base_url"`                                 // Override for testing
	RateLimit      int    `toml:"rate_limit" validate:"gte=1"`              // Requests per second
	RequestTimeout string `toml:"request_timeout" validate:"required"`      // Per-call HTTP timeout, e.g. "30s"
	NewsLimit      int    `toml:"news_limit" validate:"gte=1,lte=100"`      // Max news articles per ticker
}

// FilingsConfig contains the external filings provider configuration
type FilingsConfig struct {
	Enabled        bool   `toml:"enabled"`         // Include filings in report inputs
	BaseURL        string `toml:"base_url"`        // Filings API base URL
	UserAgent      string `toml:"user_agent"`      // Identification required by EDGAR-style APIs
	RateLimit      int    `toml:"rate_limit" validate:"gte=1"`
	RequestTimeout string `toml:"request_timeout" validate:"required"`
	MaxFilings     int    `toml:"max_filings" validate:"gte=1"` // Most recent filings to include
}

// ClaudeConfig contains Anthropic Claude API configuration for report generation
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key for Claude operations
	Model       string  `toml:"model"`       // Model for report generation
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Rate limit duration string (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// PDFConfig contains PDF rendering configuration
type PDFConfig struct {
	FontSize float64 `toml:"font_size"` // Base font size in points (default: 9)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings should be exposed in marketbrief.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Runs: RunsConfig{
			Symbols:         []string{},
			Concurrency:     8,     // Bounded pool - downstream APIs are breaker-guarded per call, not per aggregate
			MaxAttempts:     2,     // Two additional attempts for retryable failures
			JobTimeout:      "3m",  // Per-job deadline (covers generator + PDF + cache write)
			RunTimeout:      "30m", // Global run deadline
			FreshnessWindow: "20h", // One report per trading day; 20h tolerates clock skew around the daily run
			InitialBackoff:  "5s",
			BackoffFactor:   2.0,
			RenderPDF:       true,
			PDFDir:          "./data/reports",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           "1m",
			ResetTimeout:     "30s",
		},
		Schedule: ScheduleConfig{
			Enabled: false,           // User must explicitly opt in
			Cron:    "0 30 6 * * *",  // Daily at 06:30 (after market data becomes available)
		},
		EODHD: EODHDConfig{
			APIKey:         "",
			RateLimit:      10,
			RequestTimeout: "30s",
			NewsLimit:      10,
		},
		Filings: FilingsConfig{
			Enabled:        true,
			BaseURL:        "https://data.sec.gov",
			UserAgent:      "marketbrief/1.0",
			RateLimit:      5,
			RequestTimeout: "30s",
			MaxFilings:     5,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		PDF: PDFConfig{
			FontSize: 9,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
// CLI flag overrides are applied afterwards via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants using struct tags plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration fields must parse
	durations := map[string]string{
		"runs.job_timeout":        c.Runs.JobTimeout,
		"runs.run_timeout":        c.Runs.RunTimeout,
		"runs.freshness_window":   c.Runs.FreshnessWindow,
		"runs.initial_backoff":    c.Runs.InitialBackoff,
		"breaker.window":          c.Breaker.Window,
		"breaker.reset_timeout":   c.Breaker.ResetTimeout,
		"eodhd.request_timeout":   c.EODHD.RequestTimeout,
		"filings.request_timeout": c.Filings.RequestTimeout,
		"claude.timeout":          c.Claude.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", name, value, err)
		}
	}

	jobTimeout, _ := time.ParseDuration(c.Runs.JobTimeout)
	runTimeout, _ := time.ParseDuration(c.Runs.RunTimeout)
	if jobTimeout > runTimeout {
		return fmt.Errorf("runs.job_timeout (%s) must not exceed runs.run_timeout (%s)", c.Runs.JobTimeout, c.Runs.RunTimeout)
	}

	// Per-call timeouts must fit inside the job deadline
	callTimeout, _ := time.ParseDuration(c.EODHD.RequestTimeout)
	if callTimeout > jobTimeout {
		return fmt.Errorf("eodhd.request_timeout (%s) must not exceed runs.job_timeout (%s)", c.EODHD.RequestTimeout, c.Runs.JobTimeout)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MARKETBRIEF_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("MARKETBRIEF_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MARKETBRIEF_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("MARKETBRIEF_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("MARKETBRIEF_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if key := os.Getenv("MARKETBRIEF_EODHD_API_KEY"); key != "" {
		config.EODHD.APIKey = key
	}
	if key := os.Getenv("MARKETBRIEF_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// JobTimeout returns the parsed per-job deadline.
func (c *RunsConfig) JobTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.JobTimeout)
	return d
}

// RunTimeoutDuration returns the parsed run-level deadline.
func (c *RunsConfig) RunTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RunTimeout)
	return d
}

// FreshnessWindowDuration returns the parsed freshness window.
func (c *RunsConfig) FreshnessWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.FreshnessWindow)
	return d
}

// InitialBackoffDuration returns the parsed retry backoff base.
func (c *RunsConfig) InitialBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialBackoff)
	return d
}

// RequestTimeoutDuration returns the parsed per-call timeout.
func (c *EODHDConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// RequestTimeoutDuration returns the parsed per-call timeout.
func (c *FilingsConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// TimeoutDuration returns the parsed completion timeout.
func (c *ClaudeConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// WindowDuration returns the parsed failure-counting window.
func (c *BreakerConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	return d
}

// ResetTimeoutDuration returns the parsed Open -> HalfOpen delay.
func (c *BreakerConfig) ResetTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ResetTimeout)
	return d
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"ANTHROPIC_API_KEY", "MARKETBRIEF_CLAUDE_API_KEY"},
		"claude_api_key":    {"ANTHROPIC_API_KEY", "MARKETBRIEF_CLAUDE_API_KEY"},
		"eodhd_api_key":     {"MARKETBRIEF_EODHD_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key %q not found in environment, KV store, or config", name)
}
