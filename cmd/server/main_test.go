package main

import (
	"testing"

	"caixaforte/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "production", AuthSecret: "short", DatabaseURL: "postgres://x"})
	if err == nil {
		t.Fatalf("expected weak production config to be rejected")
	}
}

func TestValidateSecurityConfigRequiresDatabaseInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "production", AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err == nil {
		t.Fatalf("expected missing DATABASE_URL to be rejected")
	}
}

func TestValidateSecurityConfigSkipsDevelopment(t *testing.T) {
	if err := validateSecurityConfig(config.Config{Env: "development"}); err != nil {
		t.Fatalf("development config should pass, got %v", err)
	}
}
