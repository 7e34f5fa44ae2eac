// Package model defines the data structures used throughout the application.
package model

import "time"

// ExpiryMargin is subtracted from a provider's reported token lifetime when the
// token is stored, so a token is considered stale slightly before the provider
// actually rejects it.
const ExpiryMargin = 30 * time.Second

// Day identifies one slot of the season calendar, 1 through 25.
type Day int

const (
	FirstDay Day = 1
	LastDay  Day = 25
)

// Valid reports whether d is inside the season calendar.
func (d Day) Valid() bool {
	return d >= FirstDay && d <= LastDay
}

// GuessEntry is a single, immutable guess. Points are never stored: they are
// derived from the guessed time and the picture's ground truth on every read.
type GuessEntry struct {
	SubmittedAt time.Time `json:"submitted_at"`
	Hour        int       `json:"guessed_hour"`
	Minute      int       `json:"guessed_minute"`
}

// OAuth2Token is a provider token response. It is transient: only its fields
// are copied onto the User via SetAuth.
type OAuth2Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"` // seconds
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// User is a player account. The ID is the identity provider's stable user ID,
// so the same person logging in through two providers gets two accounts.
//
// AccessTokenExpireAt == nil means "never expires" only when there is no
// refresh token. A nil expiry next to a refresh token is treated as expired.
type User struct {
	ID                  string             `json:"id"`
	DisplayName         string             `json:"display_name"`
	ProviderUsername    string             `json:"provider_username"`
	OAuthProvider       string             `json:"oauth_provider"`
	AccessToken         string             `json:"access_token"`
	RefreshToken        string             `json:"refresh_token,omitempty"`
	AccessTokenExpireAt *time.Time         `json:"access_token_expire_at"`
	Guesses             map[Day]GuessEntry `json:"guesses"`
	Hidden              bool               `json:"hidden"`

	// Version is bumped by stores that support optimistic concurrency.
	Version int64 `json:"-"`
}

// SetAuth copies a freshly issued token onto the user. The expiry margin is
// applied here, once per issuance.
func (u *User) SetAuth(tok *OAuth2Token, now time.Time) {
	u.AccessToken = tok.AccessToken
	u.RefreshToken = tok.RefreshToken
	u.AccessTokenExpireAt = nil
	if tok.ExpiresIn != nil {
		at := now.Add(time.Duration(*tok.ExpiresIn)*time.Second - ExpiryMargin)
		u.AccessTokenExpireAt = &at
	}
}

// ClearAuth logs the user out: tokens are wiped and the expiry is set to now.
func (u *User) ClearAuth(now time.Time) {
	u.AccessToken = ""
	u.RefreshToken = ""
	u.AccessTokenExpireAt = &now
}

// TokenExpired reports whether the stored access token must no longer be used.
func (u *User) TokenExpired(now time.Time) bool {
	if u.AccessTokenExpireAt == nil {
		return u.RefreshToken != ""
	}
	return !now.Before(*u.AccessTokenExpireAt)
}

// CanRefresh reports whether a refresh grant can be attempted.
func (u *User) CanRefresh() bool {
	return u.RefreshToken != ""
}

func (u *User) HasGuessed(day Day) bool {
	_, ok := u.Guesses[day]
	return ok
}

// AddGuess records the first guess for day. It returns false, leaving the user
// untouched, when a guess already exists.
func (u *User) AddGuess(day Day, entry GuessEntry) bool {
	if u.HasGuessed(day) {
		return false
	}
	if u.Guesses == nil {
		u.Guesses = make(map[Day]GuessEntry)
	}
	u.Guesses[day] = entry
	return true
}

// LastGuessAt returns the submission time of the most recent guess, or the
// zero time when the user has not guessed yet.
func (u *User) LastGuessAt() time.Time {
	var last time.Time
	for _, g := range u.Guesses {
		if g.SubmittedAt.After(last) {
			last = g.SubmittedAt
		}
	}
	return last
}
