package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/auth"
	"github.com/coko7/advent-of-time/internal/oauth"
	"github.com/coko7/advent-of-time/internal/service"
)

// Sessions is the part of service.AuthService the login flow needs.
type Sessions interface {
	Providers() []oauth.Provider
	LoginURL(providerName string) (*service.LoginRedirect, error)
	CompleteLogin(ctx context.Context, providerName, code, state, expectedState string) (*service.LoginResult, error)
	Logout(ctx context.Context, userID string) error
}

// AuthHandler manages the OAuth login flow and session cookies.
//
// HANDLER RESPONSIBILITIES:
//   - HandleProviders → list the providers a user can log in with
//   - HandleLogin     → redirect the browser to the provider's authorize page
//   - HandleCallback  → receive the code, store the user, set the bearer cookie
//   - HandleLogout    → clear the stored tokens and the cookie
//   - HandleMe        → return the logged-in user's account
type AuthHandler struct {
	sessions      Sessions
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(sessions Sessions, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:      sessions,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type providersResponse struct {
	Providers []oauth.Provider `json:"providers"`
}

// HandleProviders lists the enabled providers.
//
// HTTP: GET /auth/providers
func (h *AuthHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.sessions.Providers()
	if providers == nil {
		providers = []oauth.Provider{}
	}
	writeJSON(w, http.StatusOK, providersResponse{Providers: providers})
}

// HandleLogin redirects the user to the provider's authorization page.
//
// HTTP: GET /auth/oauth2?idp=discord
//
// CSRF PROTECTION VIA STATE:
// The state is a signed token bound to the provider. It travels in the
// authorize URL and in a short-lived cookie; the callback requires both to
// match and the signature to verify.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	idp := strings.TrimSpace(r.URL.Query().Get("idp"))
	if idp == "" {
		writeError(w, apperror.ValidationFailed("idp", "idp query parameter is required"))
		return
	}

	redirect, err := h.sessions.LoginURL(idp)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetStateCookie(w, redirect.State, h.secureCookies)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/oauth2/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. The provider reported an error (user denied) → 401 with its description
//  2. State, code exchange, identity and storage → service.CompleteLogin
//  3. Set the bearer cookie with the token's lifetime and go home
//
// The state cookie is single-use and cleared on every outcome.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	expectedState := auth.StateFromRequest(r)
	auth.ClearStateCookie(w, h.secureCookies)

	if errParam := q.Get("error"); errParam != "" {
		description := q.Get("error_description")
		if description == "" {
			description = errParam
		}
		h.logger.Info("auth callback: provider returned an error",
			slog.String("provider", provider),
			slog.String("error", errParam),
		)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: errParam, Message: description})
		return
	}

	res, err := h.sessions.CompleteLogin(r.Context(), provider, q.Get("code"), q.Get("state"), expectedState)
	if err != nil {
		h.logger.Warn("auth callback: login failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	auth.SetBearerCookie(w, res.Token.AccessToken, res.Token.ExpiresIn, h.secureCookies)
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout clears the stored tokens and the bearer cookie.
//
// HTTP: GET /auth/logout
//
// Anonymous callers are simply redirected. A store failure is logged but the
// cookie is cleared anyway.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		if err := h.sessions.Logout(r.Context(), user.ID); err != nil {
			h.logger.Error("logout failed",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	auth.ClearBearerCookie(w, h.secureCookies)
	http.Redirect(w, r, "/", http.StatusFound)
}

// meResponse is the public part of a user. Tokens never leave the server.
type meResponse struct {
	ID               string `json:"id"`
	DisplayName      string `json:"display_name"`
	ProviderUsername string `json:"provider_username"`
	OAuthProvider    string `json:"oauth_provider"`
	Hidden           bool   `json:"hidden"`
	Guesses          int    `json:"guesses"`
}

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /auth/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:               user.ID,
		DisplayName:      user.DisplayName,
		ProviderUsername: user.ProviderUsername,
		OAuthProvider:    user.OAuthProvider,
		Hidden:           user.Hidden,
		Guesses:          len(user.Guesses),
	})
}
