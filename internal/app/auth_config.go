package app

import (
	"strings"

	"github.com/eternalmemory/eternal/internal/auth"
)

const defaultRefreshLength = 48

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// GoogleProviderConfig converts the Google settings into provider parameters.
func (c AuthConfig) GoogleProviderConfig() auth.GoogleConfig {
	return auth.GoogleConfig{
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.Google.RedirectURL),
	}
}

// GoogleEnabled reports whether Google sign-in is both enabled and configured.
func (c AuthConfig) GoogleEnabled() bool {
	return c.Google.Enabled && strings.TrimSpace(c.Google.ClientID) != ""
}
