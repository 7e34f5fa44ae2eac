// Package handler contains the HTTP request handlers.
//
// Handlers parse the request, call a service and write the response. They
// hold no game rules: release windows, scoring and session checks live in
// the service layer, and only the mapping of errors to status codes lives
// here.
package handler

// RESPONSE HELPERS:
// Every JSON answer goes through writeJSON and every failure through
// writeError, so all endpoints share one error shape:
//
//	{"error": "not_found", "message": "day not found with id 12"}
//
// Guess rejections are the exception: the game page reads a bare
// {"error": "<message>"} (see writeGuessError).

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coko7/advent-of-time/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body: once Encode writes, the
// header block is gone.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error type.
//
// ORDER MATTERS:
// An expired session whose refresh failed is Unauthorized wrapping a
// TokenExchange error, and an unknown bearer is Unauthorized wrapping nothing
// else. Unauthorized is checked first so both end up as 401.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrTokenExchange), errors.Is(err, apperror.ErrIdentityFetch):
		return http.StatusBadGateway, "oauth_error"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The message comes from the outermost *apperror.AppError (or GuessError) in
// the chain. Store failures and unknown errors get a generic message: the
// raw error may carry file paths or SQL.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)
	message := "An internal error occurred"

	if status != http.StatusInternalServerError {
		var ge *apperror.GuessError
		var appErr *apperror.AppError
		switch {
		case errors.As(err, &ge):
			message = ge.Message
		case errors.As(err, &appErr):
			message = appErr.Message
		}
	} else {
		slog.Error("request failed", slog.String("error", err.Error()))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: message,
	})
}

// guessErrorResponse is the body of a refused guess.
type guessErrorResponse struct {
	Error string `json:"error"`
}

// writeGuessError answers a failed guess. Rejections are 400 with the reason
// as the only field; everything else falls back to writeError.
func writeGuessError(w http.ResponseWriter, err error) {
	var ge *apperror.GuessError
	if errors.As(err, &ge) {
		writeJSON(w, http.StatusBadRequest, guessErrorResponse{Error: ge.Message})
		return
	}
	writeError(w, err)
}
