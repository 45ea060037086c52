package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/openshelf/apiserver/config"
	"github.com/openshelf/apiserver/types"
)

func newTestTokenService(t *testing.T, secret string, ttl time.Duration) *TokenService {
	t.Helper()
	service, err := NewTokenService(config.AuthConfig{JWTSecret: secret, TokenTTL: ttl})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return service
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(config.AuthConfig{TokenTTL: time.Hour}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	service := newTestTokenService(t, "test-secret", time.Hour)

	token, err := service.Issue(types.User{ID: 42, Email: "a@x.com", Role: "user"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	identity, err := service.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != 42 {
		t.Errorf("unexpected subject: %d", identity.UserID)
	}
	if identity.Email != "a@x.com" {
		t.Errorf("unexpected email: %q", identity.Email)
	}
	if identity.Role != "user" {
		t.Errorf("unexpected role: %q", identity.Role)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	service := newTestTokenService(t, "test-secret", time.Nanosecond)

	token, err := service.Issue(types.User{ID: 1, Email: "a@x.com", Role: "user"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := service.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyForeignSignature(t *testing.T) {
	issuer := newTestTokenService(t, "secret-one", time.Hour)
	verifier := newTestTokenService(t, "secret-two", time.Hour)

	token, err := issuer.Issue(types.User{ID: 1, Email: "a@x.com", Role: "user"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestVerifyCorruptedToken(t *testing.T) {
	service := newTestTokenService(t, "test-secret", time.Hour)

	for _, token := range []string{
		"",
		"garbage",
		"aaa.bbb.ccc",
	} {
		if _, err := service.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
