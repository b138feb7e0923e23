package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when path is empty),
// merges it on top of the built-in defaults, applies CROSSARB_* environment
// variable overrides, and returns the final Config. The result has NOT been
// validated; the caller invokes Config.Validate after applying CLI flags.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known CROSSARB_* variables and overwrites the
// corresponding fields when set. Secrets are expected to arrive this way
// rather than through the TOML file. The BACKPACK_* and LIGHTER_* names
// match what the exchanges' own tooling exports.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Backpack.BaseURL, "CROSSARB_BACKPACK_BASE_URL")
	setStr(&cfg.Backpack.WSURL, "CROSSARB_BACKPACK_WS_URL")
	setStr(&cfg.Backpack.PublicKey, "BACKPACK_PUBLIC_KEY")
	setStr(&cfg.Backpack.SecretKey, "BACKPACK_SECRET_KEY")

	setStr(&cfg.Lighter.BaseURL, "CROSSARB_LIGHTER_BASE_URL")
	setStr(&cfg.Lighter.WSURL, "CROSSARB_LIGHTER_WS_URL")
	setStr(&cfg.Lighter.PrivateKey, "LIGHTER_API_PRIVATE_KEY")
	setInt64(&cfg.Lighter.AccountIndex, "LIGHTER_ACCOUNT_INDEX")
	setInt(&cfg.Lighter.APIKeyIndex, "LIGHTER_API_KEY_INDEX")

	setStr(&cfg.Trading.Ticker, "CROSSARB_TICKER")
	setFloat64(&cfg.Trading.Size, "CROSSARB_SIZE")
	setFloat64(&cfg.Trading.LongThreshold, "CROSSARB_LONG_THRESHOLD")
	setFloat64(&cfg.Trading.ShortThreshold, "CROSSARB_SHORT_THRESHOLD")
	setFloat64(&cfg.Trading.MaxPosition, "CROSSARB_MAX_POSITION")

	setStr(&cfg.Logs.Dir, "CROSSARB_LOGS_DIR")

	setBool(&cfg.Redis.Enabled, "CROSSARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")

	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "CROSSARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Metrics.Addr, "CROSSARB_METRICS_ADDR")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
