package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier("secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tok, err := v.Sign("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	id, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.OwnerID != "user-1" || id.Role != "authenticated" || id.Token != tok {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier("secret")
	other, _ := NewVerifier("other")

	foreign, _ := other.Sign("user-1", time.Hour)
	expired, _ := v.Sign("user-1", -time.Minute)
	noSub, _ := v.Sign("", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "abc.def.ghi",
		"wrong key": foreign,
		"expired":   expired,
		"no sub":    noSub,
		"alg none":  none,
	} {
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?access_token=q", nil)
	if got := TokenFromRequest(r); got != "q" {
		t.Fatalf("query fallback: got %q", got)
	}
	r.Header.Set("Authorization", "Bearer h")
	if got := TokenFromRequest(r); got != "h" {
		t.Fatalf("header should win: got %q", got)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(" "); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
