package auth

import (
	"net/http"
	"time"
)

const (
	// BearerCookie carries the provider access token of a logged-in user.
	BearerCookie = "aot-bearer"

	// StateCookie carries the signed state of a login in progress.
	StateCookie = "aot-oauth-state"

	stateCookiePath = "/auth"
)

// SetBearerCookie stores the access token in an HttpOnly cookie. expiresIn is
// the provider's token lifetime in seconds; without one the cookie lives for
// the browser session.
//
// COOKIE FLAGS:
//   - HttpOnly: JavaScript cannot read the token.
//   - SameSite=Lax: the cookie still rides along on the top-level redirect back
//     from the provider, but not on cross-site POSTs.
//   - Secure: only over HTTPS. Disabled by config for local development.
func SetBearerCookie(w http.ResponseWriter, token string, expiresIn *int64, secure bool) {
	c := &http.Cookie{
		Name:     BearerCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if expiresIn != nil && *expiresIn > 0 {
		c.MaxAge = int(*expiresIn)
	}
	http.SetCookie(w, c)
}

// ClearBearerCookie expires the bearer cookie. A negative MaxAge is written
// as "Max-Age=0" by net/http.
func ClearBearerCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     BearerCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// BearerFromRequest returns the bearer cookie value, or "" when absent.
func BearerFromRequest(r *http.Request) string {
	c, err := r.Cookie(BearerCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetStateCookie remembers the state of a login in progress until the
// provider calls back.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   int(StateTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    "",
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StateFromRequest returns the state cookie value, or "" when absent.
func StateFromRequest(r *http.Request) string {
	c, err := r.Cookie(StateCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
