package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.Persistent() {
		t.Fatalf("expected in-memory mode without a database path")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
	if cfg.HeartbeatInterval != 25*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected intervals %s %s", cfg.HeartbeatInterval, cfg.ShutdownTimeout)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	if _, err := Load(NewViper()); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("auth.token_ttl_minutes", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected error for zero token ttl")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MIVACA_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("MIVACA_DATABASE_PATH", "/tmp/mivaca.db")
	t.Setenv("MIVACA_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SigningSecret != "from-env" || cfg.DatabasePath != "/tmp/mivaca.db" {
		t.Fatalf("environment not applied: %#v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadDotEnvPopulatesEnvironment(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("MIVACA_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("MIVACA_LOG_LEVEL", "")
	if err := os.Unsetenv("MIVACA_LOG_LEVEL"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if os.Getenv("MIVACA_LOG_LEVEL") != "debug" {
		t.Fatalf("expected .env value to be loaded")
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
