// ABOUTME: Access token sources for backend calls
// ABOUTME: Static bearer tokens and an OAuth2 refresh-token source used after a 401

package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// TokenSource supplies bearer tokens. Refresh is called at most once per
// request, after the backend rejected the current token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticTokens is a fixed token that cannot be refreshed.
type StaticTokens string

func (s StaticTokens) Token(context.Context) (string, error) {
	return string(s), nil
}

func (s StaticTokens) Refresh(context.Context) (string, error) {
	return "", errors.New("static token cannot be refreshed")
}

// OAuth2Tokens keeps an access token and exchanges its refresh token when
// the backend reports the session expired.
type OAuth2Tokens struct {
	mu  sync.Mutex
	cfg *oauth2.Config
	tok *oauth2.Token
}

func NewOAuth2Tokens(cfg *oauth2.Config, accessToken, refreshToken string) *OAuth2Tokens {
	return &OAuth2Tokens{
		cfg: cfg,
		tok: &oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken},
	}
}

func (o *OAuth2Tokens) Token(context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tok == nil || o.tok.AccessToken == "" {
		return "", errors.New("no access token")
	}
	return o.tok.AccessToken, nil
}

func (o *OAuth2Tokens) Refresh(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tok == nil || o.tok.RefreshToken == "" {
		return "", errors.New("no refresh token")
	}

	// An empty access token forces the source to run the refresh grant.
	src := o.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: o.tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = o.tok.RefreshToken
	}
	o.tok = fresh
	return fresh.AccessToken, nil
}
