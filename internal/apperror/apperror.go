// Package apperror defines the error taxonomy shared by services and handlers.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// Handlers never inspect messages; they map the sentinel (via errors.Is) to an
// HTTP status in handler.writeError.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthorized covers anonymous requests as well as expired sessions whose
	// refresh failed. Both are treated as logged out.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExchange is returned when a provider token endpoint rejects a code or
	// refresh token, or answers with something that is not a token.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrIdentityFetch is returned when the provider user-info endpoint fails.
	ErrIdentityFetch = errors.New("identity fetch failed")

	// ErrStore wraps I/O and serialization failures of persisted users.
	ErrStore = errors.New("store failure")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// TokenExchange wraps a failed call to a provider token endpoint. The cause is
// kept in the chain for logging but never shown to the user.
func TokenExchange(provider string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{
		Err:     ErrTokenExchange,
		Message: fmt.Sprintf("could not obtain a token from %s", provider),
	}, cause)
}

// IdentityFetch wraps a failed call to a provider user-info endpoint.
func IdentityFetch(provider string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{
		Err:     ErrIdentityFetch,
		Message: fmt.Sprintf("could not load your %s profile", provider),
	}, cause)
}

// Store wraps a persistence failure. op describes what was being done
// ("reading users", "writing users").
func Store(op string, cause error) error {
	return fmt.Errorf("%w: %w", &AppError{
		Err:     ErrStore,
		Message: "storage failure while " + op,
	}, cause)
}

// GuessReason enumerates why a guess was refused.
type GuessReason string

const (
	InvalidFormat  GuessReason = "invalid_format"
	AlreadyGuessed GuessReason = "already_guessed"
	DayNotReleased GuessReason = "day_not_released"
)

// GuessError is a structured rejection of a guess. It matches ErrValidation
// through errors.Is so the HTTP layer answers 400.
type GuessError struct {
	Reason  GuessReason
	Message string
}

func (e *GuessError) Error() string {
	return e.Message
}

func (e *GuessError) Unwrap() error {
	return ErrValidation
}

func Guess(reason GuessReason, format string, args ...any) *GuessError {
	return &GuessError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsGuessReason reports whether err is a GuessError with the given reason.
func IsGuessReason(err error, reason GuessReason) bool {
	var ge *GuessError
	return errors.As(err, &ge) && ge.Reason == reason
}
