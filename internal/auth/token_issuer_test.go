package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "rangedrill-dev",
		TokenTTL:      30 * time.Minute,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{
		UserID:      "user-123",
		Email:       " player@example.com ",
		DisplayName: "Player",
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != 1800 {
		t.Fatalf("expected 1800 second lifetime, got %d", expiresIn)
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return now }))
	if _, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	}); err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "user-123" || claims.Issuer != "rangedrill-dev" || claims.UserEmail != "player@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "rangedrill-dev",
		CookieName:    "app_session",
		Clock:         func() time.Time { return now.Add(10 * time.Minute) },
	})
	if err != nil {
		t.Fatalf("unexpected validator error: %v", err)
	}
	if _, err := validator.ValidateToken(tokenString); err != nil {
		t.Fatalf("validator rejected issued token: %v", err)
	}
}

func TestTokenIssuerRejectsMissingInputs(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{}); err == nil {
		t.Fatalf("expected error without signing secret")
	}
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("s")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{UserID: "  "}); err == nil {
		t.Fatalf("expected error without subject")
	}
}
