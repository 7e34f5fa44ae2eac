// Package auth holds the HTTP side of sessions: the bearer cookie, the signed
// OAuth state parameter, and the middleware that turns a cookie into a user.
//
// SESSION FLOW OVERVIEW:
//  1. GET /auth/oauth2?idp=discord → we sign a state token, store it in a
//     short-lived cookie and redirect to the provider.
//  2. The provider calls back with ?code=...&state=...; the state must match
//     the cookie and verify against our secret.
//  3. The provider's access token becomes the bearer cookie value.
//  4. On every request the middleware looks the bearer up in the user store,
//     refreshing it with the provider when it has gone stale.
//
// The state is a short-lived HS256 JWT carrying the provider name and a
// random nonce, so nothing about pending logins is stored server side.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	stateIssuer = "advent-of-time"

	// StateTTL is how long a user has to approve the login at the provider.
	StateTTL = 10 * time.Minute
)

// StateSigner issues and verifies OAuth state tokens.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewStateSigner creates a StateSigner with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: AOT_STATE_SECRET=$(openssl rand -hex 32)
func NewStateSigner(secret string) (*StateSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: state secret must be at least 16 characters")
	}
	return &StateSigner{secret: []byte(secret), ttl: StateTTL}, nil
}

// stateClaims binds a login attempt to one provider.
type stateClaims struct {
	Provider string `json:"idp"`
	jwt.RegisteredClaims
}

// Sign returns a state token for a login through provider.
func (s *StateSigner) Sign(provider string) (string, error) {
	return s.signWithTTL(provider, s.ttl)
}

func (s *StateSigner) signWithTTL(provider string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := stateClaims{
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    stateIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Verify checks that state was issued by us, has not expired, and was issued
// for provider.
//
// jwt.WithValidMethods pins HS256 so a token claiming "none" or an asymmetric
// algorithm is rejected before the key is used.
func (s *StateSigner) Verify(state, provider string) error {
	token, err := jwt.ParseWithClaims(
		state,
		&stateClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("auth: login attempt expired")
		}
		return fmt.Errorf("auth: invalid state: %w", err)
	}

	c, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("auth: invalid state claims")
	}
	if c.Provider != provider {
		return fmt.Errorf("auth: state issued for %q, callback from %q", c.Provider, provider)
	}
	return nil
}
