package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("guess", "guess is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("user", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrNotFound",
			err:       ValidationFailed("day", "day out of range"),
			target:    ErrNotFound,
			wantMatch: false,
		},
		{
			name:      "GuessError wraps ErrValidation",
			err:       Guess(AlreadyGuessed, "already guessed day %d", 3),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "TokenExchange wraps ErrTokenExchange",
			err:       TokenExchange("discord", errors.New("401")),
			target:    ErrTokenExchange,
			wantMatch: true,
		},
		{
			name:      "IdentityFetch wraps ErrIdentityFetch",
			err:       IdentityFetch("github", errors.New("boom")),
			target:    ErrIdentityFetch,
			wantMatch: true,
		},
		{
			name:      "Store wraps ErrStore",
			err:       Store("reading users", errors.New("disk full")),
			target:    ErrStore,
			wantMatch: true,
		},
		{
			name:      "Unauthorized does NOT match ErrForbidden",
			err:       Unauthorized("login required"),
			target:    ErrForbidden,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("guess", "guess is required"),
			wantMessage: "guess is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("user", "abc123"),
			wantMessage: "user conflict with id abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("user", "abc123")
	unwrapped := err.Unwrap()

	if unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("day", "day must be between 1 and 25")

	if err.Field != "day" {
		t.Errorf("Field = %q, want %q", err.Field, "day")
	}
}

func TestGuessErrorReason(t *testing.T) {
	err := fmt.Errorf("service/guess: %w", Guess(DayNotReleased, "day %d is not released yet", 16))

	if !IsGuessReason(err, DayNotReleased) {
		t.Errorf("IsGuessReason(%v, DayNotReleased) = false, want true", err)
	}
	if IsGuessReason(err, AlreadyGuessed) {
		t.Errorf("IsGuessReason(%v, AlreadyGuessed) = true, want false", err)
	}
	if got := err.Error(); got != "service/guess: day 16 is not released yet" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrappedAppErrorMessageIsUserFacing(t *testing.T) {
	err := TokenExchange("microsoft", errors.New("oauth2: invalid_grant"))

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("errors.As(%v, *AppError) = false", err)
	}
	if appErr.Message != "could not obtain a token from microsoft" {
		t.Errorf("Message = %q", appErr.Message)
	}
}
