// Package common defines shared constants and sentinel errors used across
// the repositories, services and transports of authkeeper. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound   = errors.New("not found")
	ErrorEmailTaken = errors.New("email already taken")
	ErrorValidation = errors.New("validation failed")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Token codec errors. They never leave the service layer as-is.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthError is the single caller-visible failure of an authentication flow.
//
// It matches ErrorUnauthorized with errors.Is. The underlying cause is kept
// for logging only and is deliberately not exposed through Unwrap, so callers
// cannot tell which stage of a flow failed.
type AuthError struct {
	Message string
	cause   error
}

// NewAuthError builds an AuthError with the given public message and cause.
func NewAuthError(message string, cause error) *AuthError {
	return &AuthError{Message: message, cause: cause}
}

func (e *AuthError) Error() string { return e.Message }

// Is reports whether target is ErrorUnauthorized.
func (e *AuthError) Is(target error) bool { return target == ErrorUnauthorized }

// Cause returns the internal error that triggered the failure.
func (e *AuthError) Cause() error { return e.cause }

// MessageError attaches a human-readable message to one of the sentinel
// errors above, e.g. NotFound("User not found").
type MessageError struct {
	Message string
	kind    error
}

func (e *MessageError) Error() string { return e.Message }

func (e *MessageError) Unwrap() error { return e.kind }

// NotFound returns an error matching ErrorNotFound with a custom message.
func NotFound(message string) error {
	return &MessageError{Message: message, kind: ErrorNotFound}
}

// EmailTaken returns an error matching ErrorEmailTaken.
func EmailTaken() error {
	return &MessageError{Message: "Email already taken", kind: ErrorEmailTaken}
}

// Forbidden returns an error matching ErrorForbidden.
func Forbidden() error {
	return &MessageError{Message: "Forbidden", kind: ErrorForbidden}
}

// Invalid returns an error matching ErrorValidation with a custom message.
func Invalid(message string) error {
	return &MessageError{Message: message, kind: ErrorValidation}
}
