package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the OpenID issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// GoogleIdentity is the verified subject returned by a completed Google sign-in.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleProvider runs the authorization code flow with PKCE and verifies the ID token.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	httpClient  *http.Client
	timeout     time.Duration
}

// NewGoogleProvider performs OpenID discovery against the issuer.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("google provider: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("google provider: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("google provider: redirect url is required")
	}

	issuerURL := strings.TrimSpace(cfg.Issuer)
	if issuerURL == "" {
		issuerURL = GoogleIssuer
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("google provider: discovery failed: %w", err)
	}

	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier:   issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: cfg.HTTPClient,
		timeout:    timeout,
	}, nil
}

// AuthURL returns the consent page URL for a pending sign-in.
func (p *GoogleProvider) AuthURL(state, nonce, challenge string) string {
	return p.oauthConfig.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange redeems code and verifies the returned ID token against nonce.
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier, nonce string) (*GoogleIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("google provider: authorization code missing")
	}
	if strings.TrimSpace(verifier) == "" {
		return nil, errors.New("google provider: pkce verifier is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, fmt.Errorf("google provider: exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google provider: id_token missing from response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google provider: verify id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("google provider: nonce mismatch")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}

	return &GoogleIdentity{
		Subject:       idToken.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claims.Email)),
		EmailVerified: claims.EmailVerified,
		Name:          strings.TrimSpace(claims.Name),
		Picture:       strings.TrimSpace(claims.Picture),
	}, nil
}
