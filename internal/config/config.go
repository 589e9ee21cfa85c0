// Package config loads the back office configuration: built-in defaults,
// then a TOML file, then BACKOFFICE_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Risk       RiskConfig       `toml:"risk"`
	Settlement SettlementConfig `toml:"settlement"`
	Log        LogConfig        `toml:"log"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on the in-memory
// store.
type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int    `toml:"max_conns"`
}

// RedisConfig enables the read-through cache and the recalculation lock.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// S3Config enables the risk snapshot archive when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

type RiskConfig struct {
	Method          string   `toml:"method"`
	Interval        duration `toml:"interval"` // 0 disables scheduled runs
	LookbackDays    int      `toml:"lookback_days"`
	EWMALambda      float64  `toml:"ewma_lambda"`
	Simulations     int      `toml:"simulations"`
	Seed            int64    `toml:"seed"`
	MinObservations int      `toml:"min_observations"`
	LockTTL         duration `toml:"lock_ttl"`

	// Exposure limits in settlement currency; 0 disables a limit.
	MaxPerProduct        float64 `toml:"max_per_product"`
	MaxCorrelated        float64 `toml:"max_correlated"`
	CorrelationThreshold float64 `toml:"correlation_threshold"`
}

type SettlementConfig struct {
	// DefaultCurrency applies to requests that name no settlement currency.
	DefaultCurrency string `toml:"default_currency"`
}

// LogConfig controls the process logger. With File set, output also goes
// to a size-rotated file.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // json or text
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// duration decodes TOML strings such as "30s" or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs a single in-memory instance.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{30 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{MaxConns: 10},
		Redis:    RedisConfig{CacheTTL: duration{30 * time.Second}},
		S3:       S3Config{Region: "us-east-1"},
		Risk: RiskConfig{
			Method:               "parametric",
			Interval:             duration{15 * time.Minute},
			LookbackDays:         365,
			EWMALambda:           0.94,
			Simulations:          10000,
			Seed:                 42,
			MinObservations:      20,
			LockTTL:              duration{2 * time.Minute},
			CorrelationThreshold: 0.7,
		},
		Settlement: SettlementConfig{DefaultCurrency: "USD"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validMethods = map[string]bool{"parametric": true, "historical": true, "ewma": true, "monte_carlo": true}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "server: shutdown_timeout must be positive")
	}
	if c.Database.URL != "" && c.Database.MaxConns < 1 {
		errs = append(errs, "database: max_conns must be >= 1")
	}
	if c.Redis.URL != "" && c.Database.URL == "" {
		errs = append(errs, "redis: requires database.url (redis only caches the PostgreSQL store)")
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	if !validMethods[c.Risk.Method] {
		errs = append(errs, fmt.Sprintf("risk: unknown method %q (valid: parametric, historical, ewma, monte_carlo)", c.Risk.Method))
	}
	if c.Risk.Interval.Duration < 0 {
		errs = append(errs, "risk: interval must not be negative")
	}
	if c.Risk.LookbackDays < 2 {
		errs = append(errs, "risk: lookback_days must be >= 2")
	}
	if c.Risk.EWMALambda <= 0 || c.Risk.EWMALambda >= 1 {
		errs = append(errs, fmt.Sprintf("risk: ewma_lambda must be in (0, 1), got %v", c.Risk.EWMALambda))
	}
	if c.Risk.Simulations < 100 {
		errs = append(errs, "risk: simulations must be >= 100")
	}
	if c.Risk.MinObservations < 2 {
		errs = append(errs, "risk: min_observations must be >= 2")
	}
	if c.Risk.MaxPerProduct < 0 || c.Risk.MaxCorrelated < 0 {
		errs = append(errs, "risk: exposure limits must not be negative")
	}
	if c.Risk.CorrelationThreshold <= 0 || c.Risk.CorrelationThreshold > 1 {
		errs = append(errs, fmt.Sprintf("risk: correlation_threshold must be in (0, 1], got %v", c.Risk.CorrelationThreshold))
	}

	if len(strings.TrimSpace(c.Settlement.DefaultCurrency)) != 3 {
		errs = append(errs, fmt.Sprintf("settlement: default_currency must be a 3-letter code, got %q", c.Settlement.DefaultCurrency))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
