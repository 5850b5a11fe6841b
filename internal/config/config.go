package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultUserAgent is the browser identification sent with every probe.
// Cache behavior on real origins differs for bot-looking agents, so the
// probe presents itself as a current desktop Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36 Edg/142.0.0.0"

// Config holds all settings for a probing run. Fields are populated by
// Viper from flags, environment and an optional config file, and the
// struct is treated as immutable once a run starts.
type Config struct {
	SitemapURL  string `mapstructure:"sitemap"`
	TargetsFile string `mapstructure:"targets"`

	BatchSize   int           `mapstructure:"batch-size"`
	BatchDelay  time.Duration `mapstructure:"batch-delay"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxURLs     int           `mapstructure:"max-urls"`

	RequestTimeout time.Duration `mapstructure:"timeout"`
	SitemapTimeout time.Duration `mapstructure:"sitemap-timeout"`
	MaxRetries     int           `mapstructure:"retries"`
	UserAgent      string        `mapstructure:"user-agent"`
	Insecure       bool          `mapstructure:"insecure"`

	CheckAEM bool `mapstructure:"check-aem"`

	// Timing-inference thresholds in milliseconds. These are heuristics,
	// not protocol guarantees, so they stay configurable.
	HitThresholdMS  int `mapstructure:"hit-threshold"`
	MissThresholdMS int `mapstructure:"miss-threshold"`

	OutputFile   string `mapstructure:"output"`
	OutputFormat string `mapstructure:"format"`

	LogLevel   string `mapstructure:"log-level"`
	LogFile    string `mapstructure:"log-file"`
	Silent     bool   `mapstructure:"silent"`
	NoColor    bool   `mapstructure:"no-color"`
	NoProgress bool   `mapstructure:"no-progress"`

	ServerHost string `mapstructure:"host"`
	ServerPort int    `mapstructure:"port"`
}

// GetDefaultConfig returns a Config populated with default values. Viper
// registers these as defaults and overrides them with flags and env vars.
func GetDefaultConfig() *Config {
	return &Config{
		BatchSize:       3,
		BatchDelay:      1 * time.Second,
		Concurrency:     10,
		MaxURLs:         100,
		RequestTimeout:  15 * time.Second,
		SitemapTimeout:  240 * time.Second,
		MaxRetries:      0,
		UserAgent:       DefaultUserAgent,
		CheckAEM:        true,
		HitThresholdMS:  100,
		MissThresholdMS: 500,
		OutputFormat:    "text",
		LogLevel:        "info",
		ServerHost:      "0.0.0.0",
		ServerPort:      5000,
	}
}

// FromViper builds a Config on top of the defaults from whatever Viper has
// collected (flags, CACHETESTER_* env vars, optional config file).
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration at the trust boundary, before any
// network activity. Each violation yields its own descriptive error.
// The batch size / batch delay / max URLs messages are surfaced verbatim
// through the HTTP API, so their wording is part of the contract.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("Batch size must be a positive integer")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("Batch delay must be a non-negative number")
	}
	if c.MaxURLs <= 0 {
		return fmt.Errorf("Max URLs must be a positive integer")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.SitemapTimeout <= 0 {
		return fmt.Errorf("sitemap timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.HitThresholdMS <= 0 {
		return fmt.Errorf("hit threshold must be positive")
	}
	if c.MissThresholdMS <= c.HitThresholdMS {
		return fmt.Errorf("miss threshold (%dms) must be above hit threshold (%dms)", c.MissThresholdMS, c.HitThresholdMS)
	}
	switch c.OutputFormat {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("unsupported output format: %s", c.OutputFormat)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	return nil
}

// Clone returns a copy of the configuration. The API bridge overlays
// request-scoped knobs on a clone so the server's base config is never
// mutated.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String summarizes the settings that shape a run, for debug logging.
func (c *Config) String() string {
	source := c.SitemapURL
	if source == "" {
		source = c.TargetsFile
	}
	return fmt.Sprintf("Source: %s, BatchSize: %d, BatchDelay: %s, Concurrency: %d, MaxURLs: %d, Timeout: %s, Retries: %d, CheckAEM: %t, Thresholds: %d/%dms",
		source, c.BatchSize, c.BatchDelay.String(), c.Concurrency, c.MaxURLs, c.RequestTimeout.String(), c.MaxRetries, c.CheckAEM, c.HitThresholdMS, c.MissThresholdMS)
}
