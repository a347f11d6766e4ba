package auth

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "ember-auth",
		Audience:      "ember-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(nil)

	token, expiresIn, err := issuer.IssueToken(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn != int64(time.Hour/time.Second) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected a compact JWT, got %q", token)
	}

	subject, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if subject != "user-123" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(nil)

	if _, _, err := issuer.IssueToken(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(func() time.Time { return issuedAt })

	token, _, err := issuer.IssueToken(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	later := newTestIssuer(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	if _, err := later.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(nil)
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "ember-auth",
		Audience:      "ember-api",
	})

	token, _, err := foreign.IssueToken(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected token from another signer to be rejected")
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "ember-auth",
		Audience:      "other-service",
	})
	token, _, err := other.IssueToken(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	issuer := newTestIssuer(nil)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected token for another audience to be rejected")
	}
}
