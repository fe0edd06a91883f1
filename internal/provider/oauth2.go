package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/postloom/postloom/internal/errs"
)

// OAuth2Strategy drives the refresh_token grant for one OAuth2 provider.
// Endpoint and parameter shapes differ per provider; oauth2.Config absorbs
// most of that, including rotated refresh tokens and expires_in parsing.
type OAuth2Strategy struct {
	name      string
	conf      *oauth2.Config
	revokeURL string // empty when the provider has no revocation endpoint
	client    *http.Client
}

// NewOAuth2 constructs a strategy for an OAuth2-style provider.
func NewOAuth2(name string, creds ClientCredentials, endpoint oauth2.Endpoint, revokeURL string, client *http.Client) *OAuth2Strategy {
	return &OAuth2Strategy{
		name: name,
		conf: &oauth2.Config{
			ClientID:     creds.ID,
			ClientSecret: creds.Secret,
			Endpoint:     endpoint,
		},
		revokeURL: revokeURL,
		client:    client,
	}
}

func (s *OAuth2Strategy) Name() string { return s.name }

// Refresh exchanges the stored refresh token for fresh credentials.
// A rotated refresh token comes back in Credentials.RefreshToken; providers
// that do not rotate leave it empty. Missing expires_in defaults to
// DefaultTokenLifetime.
func (s *OAuth2Strategy) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, &errs.RefreshError{Provider: s.name, Kind: errs.RefreshNoToken, Err: errs.ErrNoRefreshToken}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return Credentials{}, &errs.RefreshError{
				Provider: s.name,
				Kind:     errs.RefreshRejected,
				Payload:  strings.TrimSpace(string(rerr.Body)),
				Err:      err,
			}
		}
		return Credentials{}, &errs.RefreshError{Provider: s.name, Kind: errs.RefreshNetwork, Err: err}
	}

	creds := Credentials{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}
	if creds.ExpiresAt.IsZero() {
		creds.ExpiresAt = time.Now().Add(DefaultTokenLifetime)
	}
	// oauth2 carries the request's refresh token through when the response
	// omits one; only a genuinely new value counts as rotation.
	if tok.RefreshToken != refreshToken {
		creds.RefreshToken = tok.RefreshToken
	}
	return creds, nil
}

// Revoke posts the access token to the provider's revocation endpoint.
func (s *OAuth2Strategy) Revoke(ctx context.Context, accessToken string) error {
	if s.revokeURL == "" {
		return nil
	}
	return postRevoke(ctx, s.client, s.name, s.revokeURL, accessToken)
}

func postRevoke(ctx context.Context, client *http.Client, name, revokeURL, accessToken string) error {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s revoke: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
