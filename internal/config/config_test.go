package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Host != "0.0.0.0" {
		t.Fatalf("unexpected default host %s", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("unexpected default token ttl %s", cfg.TokenTTL)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.Production() {
		t.Fatalf("default env must not be production")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("APP_ENV", "production")
	t.Setenv("KPI_CACHE_TTL", "45s")

	cfg := Load()
	if cfg.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Port)
	}
	if !cfg.Production() {
		t.Fatalf("expected production env")
	}
	if cfg.KPICacheTTL != 45*time.Second {
		t.Fatalf("expected 45s ttl, got %s", cfg.KPICacheTTL)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("AUTH_TOKEN_TTL", "soon")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Fatalf("malformed port should fall back, got %d", cfg.Port)
	}
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("malformed ttl should fall back, got %s", cfg.TokenTTL)
	}
}
