package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func newTestValidator(t *testing.T, now time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signClaims(t *testing.T, claims SessionClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNewSessionValidatorRequiresSecretAndCookie(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{CookieName: "c"}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key, got %v", err)
	}
	if _, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte("s")}); !errors.Is(err, ErrMissingSessionCookieName) {
		t.Fatalf("expected missing cookie name, got %v", err)
	}
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	valid := SessionClaims{
		UserEmail: testSessionUserEmail,
		UserRoles: []string{"Author"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-time.Hour))
	foreignIssuer := valid
	foreignIssuer.Issuer = "someone-else"
	noSubject := valid
	noSubject.Subject = " "

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "valid", token: signClaims(t, valid, testSessionSigningSecret)},
		{name: "empty", token: "", want: ErrMissingSessionToken},
		{name: "expired", token: signClaims(t, expired, testSessionSigningSecret), want: ErrExpiredSessionToken},
		{name: "wrong secret", token: signClaims(t, valid, "other"), want: ErrInvalidSessionToken},
		{name: "wrong issuer", token: signClaims(t, foreignIssuer, testSessionSigningSecret), want: ErrInvalidSessionToken},
		{name: "missing subject", token: signClaims(t, noSubject, testSessionSigningSecret), want: ErrMissingSessionSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := validator.ValidateToken(tt.token)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation failure: %v", err)
			}
			if claims.Subject != testSessionUserID || !claims.HasRole("author") {
				t.Fatalf("unexpected claims: %+v", claims)
			}
		})
	}
}

func TestSessionValidatorValidateRequest(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("unexpected issuer error: %v", err)
	}
	signed, _, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{UserID: testSessionUserID})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	validator := newTestValidator(t, time.Now())

	cookieRequest := httptest.NewRequest(http.MethodGet, "/drills/suggestions", http.NoBody)
	cookieRequest.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	if claims, err := validator.ValidateRequest(cookieRequest); err != nil || claims.Subject != testSessionUserID {
		t.Fatalf("cookie validation failed: %+v %v", claims, err)
	}

	bearerRequest := httptest.NewRequest(http.MethodGet, "/drills/suggestions", http.NoBody)
	bearerRequest.Header.Set("Authorization", "Bearer "+signed)
	if claims, err := validator.ValidateRequest(bearerRequest); err != nil || claims.Subject != testSessionUserID {
		t.Fatalf("bearer validation failed: %+v %v", claims, err)
	}

	basicRequest := httptest.NewRequest(http.MethodGet, "/drills/suggestions", http.NoBody)
	basicRequest.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	basicRequest.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	if _, err := validator.ValidateRequest(basicRequest); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected unsupported scheme to be rejected, got %v", err)
	}

	bare := httptest.NewRequest(http.MethodGet, "/drills/suggestions", http.NoBody)
	if _, err := validator.ValidateRequest(bare); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}
