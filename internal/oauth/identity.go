package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
)

// userAgent is sent on profile requests; GitHub rejects requests without one.
const userAgent = "advent-of-time"

// maxProfileBytes caps how much of a user-info response is read.
const maxProfileBytes = 1 << 20

// Profile is the provider-independent part of a user-info response.
type Profile struct {
	Provider Provider
	ID       string // stable provider user ID
	Username string // provider account name, shown on the profile page
}

// discordProfile is the subset of https://discord.com/api/v10/users/@me we use.
type discordProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// microsoftProfile is the subset of https://graph.microsoft.com/v1.0/me we use.
type microsoftProfile struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
}

// githubProfile is the subset of https://api.github.com/user we use. GitHub
// IDs are numeric.
type githubProfile struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Resolver fetches provider profiles and maps them onto users.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a Resolver using client (nil gets a default client with
// DefaultHTTPTimeout).
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Resolver{client: client}
}

// FetchProfile loads the profile behind accessToken from the provider's
// user-info endpoint. Any failure is an identity fetch error; nothing is
// retried.
func (r *Resolver) FetchProfile(ctx context.Context, p Provider, cfg ProviderConfig, accessToken string) (Profile, error) {
	body, err := r.get(ctx, cfg.UserInfoURL, accessToken)
	if err != nil {
		return Profile{}, apperror.IdentityFetch(string(p), err)
	}

	var prof Profile
	switch p {
	case Discord:
		prof, err = decodeDiscord(body)
	case Microsoft:
		prof, err = decodeMicrosoft(body)
	case GitHub:
		prof, err = decodeGitHub(body)
	default:
		err = fmt.Errorf("unsupported provider %q", p)
	}
	if err != nil {
		return Profile{}, apperror.IdentityFetch(string(p), err)
	}
	prof.Provider = p
	return prof, nil
}

func (r *Resolver) get(ctx context.Context, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling user-info endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("user-info endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("reading user-info response: %w", err)
	}
	return body, nil
}

func decodeDiscord(body []byte) (Profile, error) {
	var d discordProfile
	if err := json.Unmarshal(body, &d); err != nil {
		return Profile{}, fmt.Errorf("decoding discord profile: %w", err)
	}
	if d.ID == "" {
		return Profile{}, errors.New("discord profile has no id")
	}
	return Profile{ID: d.ID, Username: d.Username}, nil
}

func decodeMicrosoft(body []byte) (Profile, error) {
	var m microsoftProfile
	if err := json.Unmarshal(body, &m); err != nil {
		return Profile{}, fmt.Errorf("decoding microsoft profile: %w", err)
	}
	if m.ID == "" {
		return Profile{}, errors.New("microsoft profile has no id")
	}
	name := m.UserPrincipalName
	if name == "" {
		name = m.Mail
	}
	if name == "" {
		name = m.DisplayName
	}
	return Profile{ID: m.ID, Username: name}, nil
}

func decodeGitHub(body []byte) (Profile, error) {
	var g githubProfile
	if err := json.Unmarshal(body, &g); err != nil {
		return Profile{}, fmt.Errorf("decoding github profile: %w", err)
	}
	if g.ID == 0 {
		return Profile{}, errors.New("github returned an invalid user (ID = 0)")
	}
	return Profile{ID: strconv.FormatInt(g.ID, 10), Username: g.Login}, nil
}

// MapToUser builds a fresh player account from a profile and the token that
// fetched it.
func MapToUser(prof Profile, tok *model.OAuth2Token, now time.Time) *model.User {
	u := &model.User{
		ID:               prof.ID,
		DisplayName:      DisplayName(prof.ID),
		ProviderUsername: prof.Username,
		OAuthProvider:    string(prof.Provider),
		Guesses:          make(map[model.Day]model.GuessEntry),
		Hidden:           false,
	}
	u.SetAuth(tok, now)
	return u
}
