// Package provider implements per-platform credential strategies behind a
// uniform refresh/revoke contract. Authorization-code flows live in an
// external subsystem; only the stored-credential side is handled here.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/postloom/postloom/internal/errs"
)

// The fixed provider set.
const (
	Facebook  = "facebook"
	Instagram = "instagram"
	LinkedIn  = "linkedin"
	YouTube   = "youtube"
	Twitter   = "twitter"
)

// DefaultTokenLifetime applies when a provider omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// Credentials is the outcome of a successful refresh exchange.
// RefreshToken is empty when the provider did not rotate it.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Strategy isolates one platform's token-endpoint quirks.
type Strategy interface {
	Name() string
	// Refresh consumes a refresh credential and produces fresh credentials.
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
	// Revoke invalidates an access token on the provider side. Best effort.
	Revoke(ctx context.Context, accessToken string) error
}

// Registry holds the configured provider set keyed by name.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byName: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.byName[s.Name()] = s
	}
	return r
}

// Get returns the strategy for name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, errs.ErrUnsupportedProvider)
	}
	return s, nil
}

// Supported reports whether name is a configured provider.
func (r *Registry) Supported(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// ClientCredentials configures one provider's OAuth application.
type ClientCredentials struct {
	ID     string
	Secret string
}

// Config collects OAuth applications for the fixed provider set.
type Config struct {
	Facebook  ClientCredentials
	Instagram ClientCredentials
	LinkedIn  ClientCredentials
	YouTube   ClientCredentials
	Twitter   ClientCredentials

	// HTTPClient overrides the outbound client (tests).
	HTTPClient *http.Client
}

// DefaultRegistry wires the production provider set.
func DefaultRegistry(cfg Config) *Registry {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return NewRegistry(
		NewOAuth2(Facebook, cfg.Facebook,
			oauth2.Endpoint{TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token"},
			"https://graph.facebook.com/v19.0/me/permissions", hc),
		NewOAuth2(Instagram, cfg.Instagram,
			oauth2.Endpoint{TokenURL: "https://api.instagram.com/oauth/access_token"},
			"", hc),
		NewOAuth2(LinkedIn, cfg.LinkedIn,
			oauth2.Endpoint{TokenURL: "https://www.linkedin.com/oauth/v2/accessToken"},
			"https://www.linkedin.com/oauth/v2/revoke", hc),
		NewOAuth2(YouTube, cfg.YouTube,
			oauth2.Endpoint{TokenURL: "https://oauth2.googleapis.com/token"},
			"https://oauth2.googleapis.com/revoke", hc),
		NewOAuth1Legacy(Twitter, cfg.Twitter,
			"https://api.twitter.com/1.1/oauth/invalidate_token.json", hc),
	)
}
