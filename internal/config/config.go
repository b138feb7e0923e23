// Package config defines the bot's configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CROSSARB_* environment
// variables; trading parameters can additionally be overridden by CLI flags.
type Config struct {
	Backpack BackpackConfig `toml:"backpack"`
	Lighter  LighterConfig  `toml:"lighter"`
	Trading  TradingConfig  `toml:"trading"`
	Logs     LogsConfig     `toml:"logs"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Metrics  MetricsConfig  `toml:"metrics"`
	LogLevel string         `toml:"log_level"`
}

// BackpackConfig holds Backpack exchange endpoints and credentials.
type BackpackConfig struct {
	BaseURL   string `toml:"base_url"`
	WSURL     string `toml:"ws_url"`
	PublicKey string `toml:"public_key"`
	SecretKey string `toml:"secret_key"`
}

// LighterConfig holds Lighter exchange endpoints and credentials.
type LighterConfig struct {
	BaseURL      string `toml:"base_url"`
	WSURL        string `toml:"ws_url"`
	PrivateKey   string `toml:"private_key"`
	AccountIndex int64  `toml:"account_index"`
	APIKeyIndex  int    `toml:"api_key_index"`
}

// TradingConfig holds the strategy parameters. Numeric values are plain
// floats here; the trading layer converts them to decimals once at startup.
type TradingConfig struct {
	Ticker           string   `toml:"ticker"`
	Size             float64  `toml:"size"`
	LongThreshold    float64  `toml:"long_threshold"`
	ShortThreshold   float64  `toml:"short_threshold"`
	MaxPosition      float64  `toml:"max_position"`
	CheckInterval    duration `toml:"check_interval"`
	BalanceTolerance float64  `toml:"balance_tolerance"`
}

// LogsConfig controls the local CSV output.
type LogsConfig struct {
	Dir string `toml:"dir"`
}

// RedisConfig holds the optional Pub/Sub publisher settings.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds the optional execution store settings. An empty DSN
// disables the store.
type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// S3Config holds the optional CSV archiver settings. An empty bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MetricsConfig holds the optional Prometheus listener settings. An empty
// addr disables the listener.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// duration lets TOML carry values like "100ms" or "5s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns the built-in configuration. Credentials are deliberately
// empty; they arrive from the environment or the TOML file.
func Defaults() Config {
	return Config{
		Backpack: BackpackConfig{
			BaseURL: "https://api.backpack.exchange",
			WSURL:   "wss://ws.backpack.exchange",
		},
		Lighter: LighterConfig{
			BaseURL: "https://mainnet.zklighter.elliot.ai",
			WSURL:   "wss://mainnet.zklighter.elliot.ai/stream",
		},
		Trading: TradingConfig{
			LongThreshold:    5,
			ShortThreshold:   5,
			MaxPosition:      0,
			CheckInterval:    duration(100 * time.Millisecond),
			BalanceTolerance: 0.0001,
		},
		Logs: LogsConfig{Dir: "logs"},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration and returns a combined error describing
// every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Trading.Ticker == "" {
		errs = append(errs, "trading: ticker must not be empty")
	}
	if c.Trading.Size <= 0 {
		errs = append(errs, "trading: size must be positive")
	}
	if c.Trading.LongThreshold < 0 {
		errs = append(errs, "trading: long_threshold must not be negative")
	}
	if c.Trading.ShortThreshold < 0 {
		errs = append(errs, "trading: short_threshold must not be negative")
	}
	if c.Trading.MaxPosition < 0 {
		errs = append(errs, "trading: max_position must not be negative")
	}
	if c.Trading.CheckInterval.Std() <= 0 {
		errs = append(errs, "trading: check_interval must be positive")
	}

	if c.Backpack.PublicKey == "" || c.Backpack.SecretKey == "" {
		errs = append(errs, "backpack: public_key and secret_key are required")
	}
	if c.Lighter.PrivateKey == "" {
		errs = append(errs, "lighter: private_key is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region is required when bucket is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
