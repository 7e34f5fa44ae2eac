package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
)

// contextKey keeps the user slot private to this package.
type contextKey string

const userKey contextKey = "user"

// Session is the outcome of resolving a bearer token.
type Session struct {
	User *model.User

	// Refreshed is true when the stored token was stale and has been replaced.
	// The browser then needs a new cookie holding User.AccessToken.
	Refreshed bool

	// ExpiresIn is the lifetime reported with the refreshed token, if any.
	ExpiresIn *int64
}

// SessionResolver turns a bearer token into a session. It returns an error
// matching apperror.ErrUnauthorized when the token is unknown, expired without
// a way to refresh, or the refresh was rejected.
type SessionResolver interface {
	Resolve(ctx context.Context, bearer string) (*Session, error)
}

// Options controls how the middleware writes cookies and logs.
type Options struct {
	SecureCookies bool
	Logger        *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// RequireAuth resolves the bearer cookie and stores the user in the request
// context. A missing cookie or a session that cannot be resumed is answered
// with 401 and the chain stops there.
func RequireAuth(sessions SessionResolver, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolve(w, r, sessions, opts)
			if err != nil {
				writeAuthError(w, err, opts.logger())
				return
			}
			if user == nil {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth extracts the user if a valid session is present, but does NOT
// block anonymous requests. Handlers check for the user via UserFromContext.
//
// A broken store is still an error: pretending the user is logged out would
// hide their guesses, so the request fails with 500 instead.
func OptionalAuth(sessions SessionResolver, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolve(w, r, sessions, opts)
			if err != nil {
				writeAuthError(w, err, opts.logger())
				return
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
//
// Returns (nil, false) if the request is anonymous.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// resolve returns the user behind the bearer cookie, nil for anonymous
// requests, or an error for failures other than "not logged in".
func resolve(w http.ResponseWriter, r *http.Request, sessions SessionResolver, opts Options) (*model.User, error) {
	bearer := BearerFromRequest(r)
	if bearer == "" {
		return nil, nil
	}

	sess, err := sessions.Resolve(r.Context(), bearer)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			// Stale cookie: drop it so the browser stops sending it.
			ClearBearerCookie(w, opts.SecureCookies)
			return nil, nil
		}
		return nil, err
	}

	if sess.Refreshed {
		SetBearerCookie(w, sess.User.AccessToken, sess.ExpiresIn, opts.SecureCookies)
	}
	return sess.User, nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
}

func writeAuthError(w http.ResponseWriter, err error, log *slog.Logger) {
	log.Error("resolving session", slog.String("error", err.Error()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"internal_error","message":"An internal error occurred"}` + "\n"))
}
