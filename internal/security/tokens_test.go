package security

import (
	"errors"
	"testing"
	"time"
)

func newTestProvider() *TokenProvider {
	return NewTokenProvider("test-secret", "auth-service", 30*time.Minute, 7*24*time.Hour)
}

func TestTokenProvider_IssueAndDecodeAccess(t *testing.T) {
	p := newTestProvider()
	token, expiresAt, err := p.IssueAccess(42)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if remaining := time.Until(expiresAt); remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Errorf("access expiry %v from now, want ~30m", remaining)
	}

	userID, err := p.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if userID != 42 {
		t.Errorf("Decode userID = %d, want 42", userID)
	}
}

func TestTokenProvider_IssueRefreshLongerLived(t *testing.T) {
	p := newTestProvider()
	_, accessExp, err := p.IssueAccess(1)
	if err != nil {
		t.Fatal(err)
	}
	refresh, refreshExp, err := p.IssueRefresh(1)
	if err != nil {
		t.Fatal(err)
	}
	if !refreshExp.After(accessExp) {
		t.Error("refresh token should outlive access token")
	}
	if userID, err := p.Decode(refresh); err != nil || userID != 1 {
		t.Errorf("Decode(refresh) = (%d, %v)", userID, err)
	}
}

func TestTokenProvider_TokensAreUnique(t *testing.T) {
	p := newTestProvider()
	a, _, _ := p.IssueAccess(1)
	b, _, _ := p.IssueAccess(1)
	if a == b {
		t.Error("two tokens for the same user should differ (jti)")
	}
}

func TestTokenProvider_DecodeRejectsGarbage(t *testing.T) {
	p := newTestProvider()
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := p.Decode(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Decode(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestTokenProvider_DecodeRejectsWrongSecret(t *testing.T) {
	p := newTestProvider()
	other := NewTokenProvider("other-secret", "auth-service", time.Minute, time.Hour)
	token, _, _ := other.IssueAccess(7)
	if _, err := p.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode(foreign secret) = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_DecodeRejectsWrongIssuer(t *testing.T) {
	p := newTestProvider()
	other := NewTokenProvider("test-secret", "someone-else", time.Minute, time.Hour)
	token, _, _ := other.IssueAccess(7)
	if _, err := p.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Decode(foreign issuer) = %v, want ErrInvalidToken", err)
	}
}

func TestTokenProvider_DecodeExpired(t *testing.T) {
	p := NewTokenProvider("test-secret", "auth-service", -time.Minute, time.Hour)
	token, _, err := p.IssueAccess(7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Decode(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Decode(expired) = %v, want ErrTokenExpired", err)
	}
}
