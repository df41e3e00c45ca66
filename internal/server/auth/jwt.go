// Package auth issues and verifies bearer credentials and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered JWT claims plus the role at issuance time.
// Subject carries the user's email. Role is informational only: authorization
// always uses the role of the freshly resolved identity.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// GenerateToken signs an HS256 access token for subject valid for validityDuration.
func GenerateToken(subject, role string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Role: role,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates signature, algorithm and expiry and returns the claims.
// Expired tokens yield common.ErrTokenExpired; every other failure, including
// a missing subject, yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// GetSubjectFromToken returns the email embedded in a valid token.
func GetSubjectFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ErrUnsupportedAlgorithm is returned by NewVerifier for anything but HS256.
var ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

// Verifier issues and checks bearer credentials with a secret fixed at startup.
type Verifier struct {
	secretKey []byte
}

// NewVerifier returns a Verifier for tokens signed with secretKey. HS256 is
// the only accepted algorithm.
func NewVerifier(secretKey, algorithm string) (*Verifier, error) {
	if algorithm != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Verifier{secretKey: []byte(secretKey)}, nil
}

// Subject returns the token subject, or ok=false for any invalid token.
// Failure reasons are deliberately not distinguished.
func (v *Verifier) Subject(tokenString string) (subject string, ok bool) {
	if tokenString == "" {
		return "", false
	}
	s, err := GetSubjectFromToken(tokenString, v.secretKey)
	if err != nil {
		return "", false
	}
	return s, true
}

// Issue signs an access token with the verifier's secret.
func (v *Verifier) Issue(subject, role string, validity time.Duration) (string, error) {
	return GenerateToken(subject, role, v.secretKey, validity)
}
