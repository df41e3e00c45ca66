// Package common defines shared constants and sentinel errors used across
// the contactbook server. Callers should use errors.Is / errors.As to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("incorrect email or password")

	// Identity errors. ErrUnauthenticated covers a missing, malformed or
	// expired credential as well as a subject that no longer exists.
	ErrUnauthenticated  = errors.New("could not validate credentials")
	ErrNotVerified      = errors.New("email not verified")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrAlreadyVerified  = errors.New("email already verified")

	// Token lifecycle errors.
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Request validation.
	ErrorValidation = errors.New("validation error")
)

// ForbiddenError is returned by trust gates when a resolved, verified identity
// is not allowed to perform an action. Reason is safe to show to the client.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// Forbidden builds a ForbiddenError with the given reason.
func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError and returns it.
func IsForbidden(err error) (*ForbiddenError, bool) {
	var fe *ForbiddenError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
