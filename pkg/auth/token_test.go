package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenOptions{
		Secret: "test-secret",
		TTL:    time.Minute,
		Now:    func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestTokenServiceIssueAndValidate(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)

	token, err := svc.Issue("42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if subject != "42" {
		t.Fatalf("subject = %q, want 42", subject)
	}
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)

	token, err := svc.Issue("42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	now = now.Add(time.Minute + time.Second)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenServiceRejectsTamperedToken(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)

	token, err := svc.Issue("42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}

	sig := []byte(parts[2])
	sig[0] = flipBase64Char(sig[0])
	tamperedSig := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := svc.Validate(tamperedSig); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered signature to fail, got %v", err)
	}

	payload := []byte(parts[1])
	payload[len(payload)/2] = flipBase64Char(payload[len(payload)/2])
	tamperedPayload := parts[0] + "." + string(payload) + "." + parts[2]
	if _, err := svc.Validate(tamperedPayload); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered payload to fail, got %v", err)
	}
}

func TestTokenServiceRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)
	other, err := NewTokenService(TokenOptions{Secret: "other-secret", Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new other service: %v", err)
	}
	token, err := other.Issue("42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected foreign token to fail, got %v", err)
	}
}

func TestTokenServiceRejectsNoneAlgorithm(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, &now)
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    defaultTokenIssuer,
		Audience:  jwt.ClaimStrings{defaultTokenAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.Validate(unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none token to fail, got %v", err)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(TokenOptions{}); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}

func flipBase64Char(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}
