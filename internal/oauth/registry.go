// Package oauth implements the parts of OAuth 2.0 the game needs: a static
// registry of identity providers, the authorization-code and refresh-token
// grants, and per-provider mapping of a profile onto a player account.
//
// AUTHORIZATION CODE FLOW:
//  1. The browser is redirected to the provider's authorize URL with our
//     client ID, redirect URI and scope.
//  2. The provider calls back with a short-lived "code".
//  3. We exchange the code for an access token (server-to-server, with our
//     client secret) and, for most providers, a refresh token.
//  4. The access token is used once to fetch the user's profile, then stored on
//     the user record and handed to the browser as the session cookie.
package oauth

import (
	"fmt"
	"net/url"

	"github.com/coko7/advent-of-time/internal/apperror"
)

// Provider is the closed set of supported identity providers.
type Provider string

const (
	Discord   Provider = "discord"
	Microsoft Provider = "microsoft"
	GitHub    Provider = "github"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{Discord, Microsoft, GitHub}

// ParseProvider returns the Provider named s. Unknown names are reported as
// not found.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", apperror.NotFound("identity provider", s)
}

// ProviderConfig carries the endpoints and credentials of one provider.
type ProviderConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AuthorizeURL string `yaml:"authorize_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"user_info_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Scope        string `yaml:"scope"`
}

// Validate checks that an enabled provider has everything the flow needs.
func (c ProviderConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	for name, raw := range map[string]string{
		"authorize_url": c.AuthorizeURL,
		"token_url":     c.TokenURL,
		"user_info_url": c.UserInfoURL,
		"redirect_uri":  c.RedirectURI,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q is not an absolute URL", name, raw)
		}
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

// Registry is a read-only lookup from provider name to configuration.
type Registry struct {
	configs map[Provider]ProviderConfig
}

// NewRegistry validates every enabled provider and builds a Registry.
// Entries for unsupported provider names are rejected.
func NewRegistry(configs map[string]ProviderConfig) (*Registry, error) {
	r := &Registry{configs: make(map[Provider]ProviderConfig, len(configs))}
	for name, cfg := range configs {
		p, err := ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("oauth: unsupported provider %q in configuration", name)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("oauth: provider %s: %w", name, err)
		}
		r.configs[p] = cfg
	}
	return r, nil
}

// ConfigFor returns the configuration of an enabled provider. Unknown and
// disabled providers are both reported as not found, so a disabled provider's
// endpoints never leak.
func (r *Registry) ConfigFor(name string) (Provider, ProviderConfig, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return "", ProviderConfig{}, err
	}
	cfg, ok := r.configs[p]
	if !ok || !cfg.Enabled {
		return "", ProviderConfig{}, apperror.NotFound("identity provider", name)
	}
	return p, cfg, nil
}

// Enabled lists the enabled providers in display order.
func (r *Registry) Enabled() []Provider {
	var out []Provider
	for _, p := range Providers {
		if cfg, ok := r.configs[p]; ok && cfg.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// AuthorizeURL builds the URL the browser is sent to for login. state is
// appended when non-empty.
func AuthorizeURL(cfg ProviderConfig, state string) string {
	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("scope", cfg.Scope)
	if state != "" {
		q.Set("state", state)
	}

	sep := "?"
	if u, err := url.Parse(cfg.AuthorizeURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return cfg.AuthorizeURL + sep + q.Encode()
}
