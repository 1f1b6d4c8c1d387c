package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/boxcards")
	t.Setenv("APP_TIMEZONE", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.Location.String() != "UTC" {
		t.Errorf("Location = %s, want UTC", cfg.Location)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %s, want 12h", cfg.TokenTTL)
	}
	if err := cfg.RequireJWT(); err == nil {
		t.Error("RequireJWT should fail without JWT_SECRET")
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/boxcards")
	t.Setenv("APP_TIMEZONE", "Not/AZone")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid APP_TIMEZONE")
	}
}

func TestGetDuration_IntegerSeconds(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "30")
	if got := getDuration("HTTP_READ_TIMEOUT", time.Second); got != 30*time.Second {
		t.Errorf("getDuration = %s, want 30s", got)
	}
	t.Setenv("HTTP_READ_TIMEOUT", "garbage")
	if got := getDuration("HTTP_READ_TIMEOUT", time.Second); got != time.Second {
		t.Errorf("getDuration fallback = %s, want 1s", got)
	}
}
