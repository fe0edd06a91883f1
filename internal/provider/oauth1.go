package provider

import (
	"context"
	"net/http"

	"github.com/postloom/postloom/internal/errs"
)

// OAuth1Legacy covers the one legacy provider that issues no refresh token.
// Expired credentials require the user to re-authorize; refresh always fails
// with the no-refresh-token subtype so the lifecycle manager can surface
// "needs reconnect" instead of retrying.
type OAuth1Legacy struct {
	name      string
	creds     ClientCredentials
	revokeURL string
	client    *http.Client
}

// NewOAuth1Legacy constructs the legacy strategy.
func NewOAuth1Legacy(name string, creds ClientCredentials, revokeURL string, client *http.Client) *OAuth1Legacy {
	return &OAuth1Legacy{name: name, creds: creds, revokeURL: revokeURL, client: client}
}

func (s *OAuth1Legacy) Name() string { return s.name }

func (s *OAuth1Legacy) Refresh(context.Context, string) (Credentials, error) {
	return Credentials{}, &errs.RefreshError{Provider: s.name, Kind: errs.RefreshNoToken, Err: errs.ErrNoRefreshToken}
}

// Revoke invalidates the token server-side. Best effort, like the rest.
func (s *OAuth1Legacy) Revoke(ctx context.Context, accessToken string) error {
	return postRevoke(ctx, s.client, s.name, s.revokeURL, accessToken)
}
