package oauth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
)

// DefaultHTTPTimeout bounds every call to a provider. No retries are made.
const DefaultHTTPTimeout = 10 * time.Second

// Exchanger performs the two token grants against a provider's token endpoint.
//
// It delegates the wire format to golang.org/x/oauth2 with AuthStyleInParams,
// which posts client_id and client_secret form-encoded next to grant_type,
// code/refresh_token and redirect_uri.
type Exchanger struct {
	client *http.Client
	now    func() time.Time
}

// NewExchanger returns an Exchanger using client. A nil client gets a default
// one with DefaultHTTPTimeout.
func NewExchanger(client *http.Client) *Exchanger {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Exchanger{client: client, now: time.Now}
}

func (x *Exchanger) config(cfg ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizeURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// withClient makes golang.org/x/oauth2 use our HTTP client.
func (x *Exchanger) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, x.client)
}

// ExchangeCode trades an authorization code for a token.
func (x *Exchanger) ExchangeCode(ctx context.Context, p Provider, cfg ProviderConfig, code string) (*model.OAuth2Token, error) {
	if code == "" {
		return nil, apperror.TokenExchange(string(p), errors.New("empty authorization code"))
	}

	tok, err := x.config(cfg).Exchange(x.withClient(ctx), code)
	if err != nil {
		return nil, apperror.TokenExchange(string(p), describe(err))
	}
	return x.toModel(tok, ""), nil
}

// Refresh runs the refresh-token grant. Providers may answer without a new
// refresh token; the previous one is then carried over.
func (x *Exchanger) Refresh(ctx context.Context, p Provider, cfg ProviderConfig, refreshToken string) (*model.OAuth2Token, error) {
	if refreshToken == "" {
		return nil, apperror.TokenExchange(string(p), errors.New("no refresh token"))
	}

	src := x.config(cfg).TokenSource(x.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, apperror.TokenExchange(string(p), describe(err))
	}
	return x.toModel(tok, refreshToken), nil
}

func (x *Exchanger) toModel(tok *oauth2.Token, previousRefresh string) *model.OAuth2Token {
	out := &model.OAuth2Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = previousRefresh
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}

	switch {
	case tok.ExpiresIn > 0:
		v := tok.ExpiresIn
		out.ExpiresIn = &v
	case !tok.Expiry.IsZero():
		v := int64(math.Round(tok.Expiry.Sub(x.now()).Seconds()))
		out.ExpiresIn = &v
	}
	return out
}

// describe keeps the provider's status and error code but drops the raw body,
// which may echo credentials.
func describe(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			return fmt.Errorf("token endpoint returned %d (%s)", status, re.ErrorCode)
		}
		return fmt.Errorf("token endpoint returned %d", status)
	}
	return err
}
