package httpapi

import (
	"context"
	"testing"
	"time"

	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "x"}); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, nil)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	issuer := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, memory.NewSeeded())
	verifier := NewAuthManager("another-secret-another-secret-32", time.Hour, nil)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
