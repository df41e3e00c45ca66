package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	email := "a@example.com"

	tok, err := GenerateToken(email, "admin", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != email {
		t.Fatalf("subject mismatch: got %q want %q", claims.Subject, email)
	}
	if claims.Role != "admin" {
		t.Fatalf("role mismatch: got %q", claims.Role)
	}
}

func TestGetSubjectFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateToken("u1@example.com", "user", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetSubjectFromToken(tok, secret)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestGetSubjectFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2@example.com", "user", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetSubjectFromToken(tok, []byte("wrong-secret"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestGetSubjectFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := GetSubjectFromToken("not.a.jwt", []byte("k"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_RejectsMissingSubject(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseToken(tok, secret); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParseToken_RejectsMissingExpiry(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x@example.com"}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseToken(tok, secret); err == nil {
		t.Fatal("expected error for token without exp")
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "x@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := ParseToken(tok, secret); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken for HS512, got %v", err)
	}
}

func TestVerifier_Subject(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier("s3cret", "HS256")
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	tok, err := v.Issue("b@example.com", "user", time.Minute)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if s, ok := v.Subject(tok); !ok || s != "b@example.com" {
		t.Fatalf("Subject() = %q, %v", s, ok)
	}
	if _, ok := v.Subject(""); ok {
		t.Fatal("empty token must not verify")
	}
	other, _ := NewVerifier("other", "HS256")
	if _, ok := other.Subject(tok); ok {
		t.Fatal("token signed with another secret must not verify")
	}
}

func TestNewVerifier_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"HS512", "RS256", "none", "hs256", ""} {
		if _, err := NewVerifier("s3cret", alg); !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Fatalf("NewVerifier(%q): want ErrUnsupportedAlgorithm, got %v", alg, err)
		}
	}
}
