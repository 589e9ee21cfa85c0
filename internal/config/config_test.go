package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backoffice.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := writeFile(t, `
[server]
port = 9090
request_timeout = "45s"

[risk]
method = "monte_carlo"
interval = "5m"
max_per_product = 2500000.0

[log]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.RequestTimeout.Duration != 45*time.Second {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Risk.Method != "monte_carlo" || cfg.Risk.Interval.Duration != 5*time.Minute || cfg.Risk.MaxPerProduct != 2500000 {
		t.Errorf("unexpected risk config %+v", cfg.Risk)
	}
	// Untouched keys keep their defaults.
	if cfg.Risk.EWMALambda != 0.94 || cfg.Risk.Seed != 42 || cfg.Settlement.DefaultCurrency != "USD" {
		t.Errorf("defaults lost: %+v", cfg.Risk)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("BACKOFFICE_SERVER_PORT", "7001")
	t.Setenv("DATABASE_URL", "postgres://localhost/backoffice")
	t.Setenv("BACKOFFICE_RISK_SEED", "7")
	t.Setenv("BACKOFFICE_S3_BUCKET", "risk-archive")
	t.Setenv("BACKOFFICE_SERVER_CORS_ORIGINS", "https://ops.example.com, https://risk.example.com")
	t.Setenv("BACKOFFICE_RISK_SIMULATIONS", "many") // unparsable, ignored

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("BACKOFFICE_SERVER_PORT should win, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/backoffice" || cfg.Risk.Seed != 7 || cfg.S3.Bucket != "risk-archive" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://risk.example.com" {
		t.Errorf("unexpected origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Risk.Simulations != 10000 {
		t.Errorf("bad value should be ignored, got %d", cfg.Risk.Simulations)
	}
}

func TestLoadBadFile(t *testing.T) {
	if _, err := Load(writeFile(t, "[server\nport = ")); err == nil {
		t.Error("expected a TOML error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected a missing file error")
	}
	if _, err := Load(writeFile(t, "[risk]\ninterval = \"soon\"\n")); err == nil {
		t.Error("expected a duration error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Risk.Method = "garch"
	cfg.Risk.EWMALambda = 1.2
	cfg.Redis.URL = "redis://localhost:6379"
	cfg.Settlement.DefaultCurrency = "DOLLAR"
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"server: port", "risk: unknown method", "ewma_lambda", "redis: requires", "default_currency", "log: unknown level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}
