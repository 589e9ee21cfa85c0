package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults and applies BACKOFFICE_*
// overrides. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "BACKOFFICE_SERVER_PORT")
	setDuration(&cfg.Server.RequestTimeout, "BACKOFFICE_SERVER_REQUEST_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "BACKOFFICE_SERVER_CORS_ORIGINS")

	// ── Database / Redis ──
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Database.URL, "BACKOFFICE_DATABASE_URL")
	setInt(&cfg.Database.MaxConns, "BACKOFFICE_DATABASE_MAX_CONNS")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "BACKOFFICE_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "BACKOFFICE_REDIS_CACHE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BACKOFFICE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BACKOFFICE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BACKOFFICE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BACKOFFICE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BACKOFFICE_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "BACKOFFICE_S3_FORCE_PATH_STYLE")

	// ── Risk ──
	setStr(&cfg.Risk.Method, "BACKOFFICE_RISK_METHOD")
	setDuration(&cfg.Risk.Interval, "BACKOFFICE_RISK_INTERVAL")
	setInt(&cfg.Risk.LookbackDays, "BACKOFFICE_RISK_LOOKBACK_DAYS")
	setFloat64(&cfg.Risk.EWMALambda, "BACKOFFICE_RISK_EWMA_LAMBDA")
	setInt(&cfg.Risk.Simulations, "BACKOFFICE_RISK_SIMULATIONS")
	setInt64(&cfg.Risk.Seed, "BACKOFFICE_RISK_SEED")
	setFloat64(&cfg.Risk.MaxPerProduct, "BACKOFFICE_RISK_MAX_PER_PRODUCT")
	setFloat64(&cfg.Risk.MaxCorrelated, "BACKOFFICE_RISK_MAX_CORRELATED")

	// ── Settlement / Log ──
	setStr(&cfg.Settlement.DefaultCurrency, "BACKOFFICE_SETTLEMENT_DEFAULT_CURRENCY")
	setStr(&cfg.Log.Level, "BACKOFFICE_LOG_LEVEL")
	setStr(&cfg.Log.Format, "BACKOFFICE_LOG_FORMAT")
	setStr(&cfg.Log.File, "BACKOFFICE_LOG_FILE")
}

// Each helper only mutates the target when the variable is set and parses.

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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
