package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSecret   = "relay-test-secret"
	testIssuer   = "shadi-auth"
	testAudience = "shadi-relay"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected issuer constructor error: %v", err)
	}
	return issuer
}

func newTestVerifier(t *testing.T, clock func() time.Time) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected verifier constructor error: %v", err)
	}
	return verifier
}

func TestVerifierAcceptsIssuedToken(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	verifier := newTestVerifier(t, nil)

	token, expiresIn, err := issuer.Issue("user-42")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", expiresIn)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("expected verification success: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Fatalf("unexpected user id %s", claims.UserID)
	}
	if claims.IssuedAt.IsZero() {
		t.Fatalf("expected issued-at claim to be populated")
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := newTestIssuer(t, func() time.Time { return issuedAt })
	verifier := newTestVerifier(t, nil)

	token, _, err := issuer.Issue("user-42")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifierRejectsMissingAndMalformedTokens(t *testing.T) {
	verifier := newTestVerifier(t, nil)

	if _, err := verifier.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, err := verifier.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifierRejectsWrongSigningAlgorithm(t *testing.T) {
	verifier := newTestVerifier(t, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    testIssuer,
		Audience:  []string{testAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}

	if _, err := verifier.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
}

func TestVerifierRejectsForeignIssuerAndAudience(t *testing.T) {
	verifier := newTestVerifier(t, nil)

	foreign, err := NewIssuer(IssuerConfig{
		SigningSecret: []byte(testSecret),
		Issuer:        "some-other-service",
		Audience:      testAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected issuer constructor error: %v", err)
	}
	token, _, err := foreign.Issue("user-42")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}

func TestNewVerifierValidatesConfig(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{Issuer: testIssuer, Audience: testAudience}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
	if _, err := NewVerifier(VerifierConfig{SigningSecret: []byte(testSecret), Audience: testAudience}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
	if _, err := NewVerifier(VerifierConfig{SigningSecret: []byte(testSecret), Issuer: testIssuer}); !errors.Is(err, ErrMissingAudience) {
		t.Fatalf("expected ErrMissingAudience, got %v", err)
	}
}

func TestIssuerRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, _, err := issuer.Issue("  "); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}
