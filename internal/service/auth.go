package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/auth"
	"github.com/coko7/advent-of-time/internal/metrics"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/oauth"
	"github.com/coko7/advent-of-time/internal/repository"
)

// TokenExchanger performs the token endpoint grants. *oauth.Exchanger in
// production.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, p oauth.Provider, cfg oauth.ProviderConfig, code string) (*model.OAuth2Token, error)
	Refresh(ctx context.Context, p oauth.Provider, cfg oauth.ProviderConfig, refreshToken string) (*model.OAuth2Token, error)
}

// ProfileFetcher loads the provider profile behind an access token.
// *oauth.Resolver in production.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, p oauth.Provider, cfg oauth.ProviderConfig, accessToken string) (oauth.Profile, error)
}

// AuthService manages sessions: it starts and completes provider logins,
// resumes sessions from the bearer cookie (refreshing stale tokens), and logs
// users out.
//
// SESSION STATES:
//
//	Anonymous → (login) → Authenticated(fresh) → (time passes) → Authenticated(stale)
//	Authenticated(stale) → (refresh ok)     → Authenticated(fresh)
//	Authenticated(stale) → (refresh failed) → Anonymous
//	any → (logout) → Anonymous
type AuthService struct {
	users     repository.UserRepository
	registry  *oauth.Registry
	exchanger TokenExchanger
	profiles  ProfileFetcher
	states    *auth.StateSigner
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     Clock
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users     repository.UserRepository
	Registry  *oauth.Registry
	Exchanger TokenExchanger
	Profiles  ProfileFetcher
	States    *auth.StateSigner
	Metrics   *metrics.Metrics // optional
	Logger    *slog.Logger
	Clock     Clock // optional, defaults to time.Now
}

func NewAuthService(d AuthDeps) *AuthService {
	return &AuthService{
		users:     d.Users,
		registry:  d.Registry,
		exchanger: d.Exchanger,
		profiles:  d.Profiles,
		states:    d.States,
		metrics:   d.Metrics,
		logger:    d.Logger,
		clock:     d.Clock,
	}
}

// Providers lists the providers a user can log in with.
func (s *AuthService) Providers() []oauth.Provider {
	return s.registry.Enabled()
}

// LoginRedirect is where to send the browser to start a login, plus the
// state that must come back on the callback.
type LoginRedirect struct {
	URL   string
	State string
}

// LoginURL starts a login through providerName. Unknown and disabled
// providers are reported as not found.
func (s *AuthService) LoginURL(providerName string) (*LoginRedirect, error) {
	p, cfg, err := s.registry.ConfigFor(providerName)
	if err != nil {
		return nil, err
	}

	state, err := s.states.Sign(string(p))
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	return &LoginRedirect{URL: oauth.AuthorizeURL(cfg, state), State: state}, nil
}

// LoginResult is what the callback handler needs to finish the login.
type LoginResult struct {
	User  *model.User
	Token *model.OAuth2Token
}

// CompleteLogin handles the provider callback: it checks the state, exchanges
// code for a token, resolves the identity and stores the user.
//
// First login creates the user. Later logins keep the display name, guesses
// and hidden flag, and only refresh the token fields and provider username.
//
// state is the value echoed by the provider; expectedState is the one we
// stored in the browser when the login started.
func (s *AuthService) CompleteLogin(ctx context.Context, providerName, code, state, expectedState string) (*LoginResult, error) {
	p, cfg, err := s.registry.ConfigFor(providerName)
	if err != nil {
		return nil, err
	}

	if state == "" || state != expectedState {
		s.metrics.Login(string(p), metrics.OutcomeRejected)
		return nil, apperror.Unauthorized("login attempt could not be verified, please try again")
	}
	if err := s.states.Verify(state, string(p)); err != nil {
		s.metrics.Login(string(p), metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", apperror.Unauthorized("login attempt could not be verified, please try again"), err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.Login(string(p), metrics.OutcomeRejected)
		return nil, apperror.ValidationFailed("code", "authorization code is missing")
	}

	tok, err := s.exchanger.ExchangeCode(ctx, p, cfg, code)
	if err != nil {
		s.metrics.Login(string(p), metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: exchanging code: %w", err)
	}

	prof, err := s.profiles.FetchProfile(ctx, p, cfg, tok.AccessToken)
	if err != nil {
		s.metrics.Login(string(p), metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: fetching profile: %w", err)
	}

	user, err := s.storeLogin(ctx, prof, tok)
	if err != nil {
		s.metrics.Login(string(p), metrics.OutcomeError)
		return nil, fmt.Errorf("service/auth: storing user %s: %w", prof.ID, err)
	}

	s.metrics.Login(string(p), metrics.OutcomeOK)
	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("provider", string(p)),
		slog.String("displayName", user.DisplayName),
	)

	return &LoginResult{User: user, Token: tok}, nil
}

func (s *AuthService) storeLogin(ctx context.Context, prof oauth.Profile, tok *model.OAuth2Token) (*model.User, error) {
	now := s.clock.now()

	relogin := func(u *model.User) error {
		if u.OAuthProvider != string(prof.Provider) {
			// Provider IDs are only unique per provider.
			return apperror.Conflict("user", u.ID)
		}
		if prof.Username != "" {
			u.ProviderUsername = prof.Username
		}
		u.SetAuth(tok, now)
		return nil
	}

	u, err := updateUser(ctx, s.users, prof.ID, relogin)
	if !errors.Is(err, apperror.ErrNotFound) {
		return u, err
	}

	u = oauth.MapToUser(prof, tok, now)
	if err := s.users.Upsert(ctx, u); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		// Lost a race with a concurrent first login of the same user.
		return updateUser(ctx, s.users, prof.ID, relogin)
	}
	return u, nil
}

// Resolve turns a bearer token into a session. It implements
// auth.SessionResolver.
//
// A stale token with a refresh token is refreshed with the provider before
// Resolve returns; the stale token is never handed back as valid. If the
// refresh fails the stored user is left untouched and the session counts as
// logged out.
func (s *AuthService) Resolve(ctx context.Context, bearer string) (*auth.Session, error) {
	user, err := s.users.GetByAccessToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("session not found")
		}
		return nil, fmt.Errorf("service/auth: resolving session: %w", err)
	}

	now := s.clock.now()
	if !user.TokenExpired(now) {
		return &auth.Session{User: user}, nil
	}
	if !user.CanRefresh() {
		return nil, apperror.Unauthorized("session expired")
	}

	p, cfg, err := s.registry.ConfigFor(user.OAuthProvider)
	if err != nil {
		// Provider disabled since the user logged in.
		return nil, fmt.Errorf("%w: %w", apperror.Unauthorized("session expired"), err)
	}

	tok, err := s.exchanger.Refresh(ctx, p, cfg, user.RefreshToken)
	if err != nil {
		s.metrics.Refresh(string(p), metrics.OutcomeError)
		s.logger.Warn("token refresh failed",
			slog.String("userID", user.ID),
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", apperror.Unauthorized("session expired"), err)
	}

	refreshedAt := s.clock.now()
	user.SetAuth(tok, refreshedAt)
	if err := s.users.Upsert(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/auth: storing refreshed token: %w", err)
		}
		return s.resolveAfterConflict(ctx, user.ID, tok, refreshedAt)
	}

	s.metrics.Refresh(string(p), metrics.OutcomeOK)
	s.logger.Debug("token refreshed", slog.String("userID", user.ID), slog.String("provider", string(p)))

	return &auth.Session{User: user, Refreshed: true, ExpiresIn: tok.ExpiresIn}, nil
}

// resolveAfterConflict stores a refreshed token after another request wrote
// the same user in between (typically a guess). The provider already rotated
// the token, so the new one is applied on top of the fresh copy.
func (s *AuthService) resolveAfterConflict(ctx context.Context, id string, tok *model.OAuth2Token, now time.Time) (*auth.Session, error) {
	user, err := updateUser(ctx, s.users, id, func(u *model.User) error {
		u.SetAuth(tok, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: storing refreshed token: %w", err)
	}
	s.metrics.Refresh(user.OAuthProvider, metrics.OutcomeOK)
	return &auth.Session{User: user, Refreshed: true, ExpiresIn: tok.ExpiresIn}, nil
}

// Logout clears the tokens of the user. The bearer stops resolving at once.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	now := s.clock.now()
	_, err := updateUser(ctx, s.users, userID, func(u *model.User) error {
		u.ClearAuth(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("service/auth: logging out %s: %w", userID, err)
	}
	s.logger.Info("user logged out", slog.String("userID", userID))
	return nil
}
