package service

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/provider"
	"github.com/postloom/postloom/internal/repository"
)

// Refresher performs the provider refresh exchange and persists the result.
type Refresher interface {
	Refresh(ctx context.Context, rec *model.TokenRecord) (*model.TokenRecord, error)
}

// RefreshCoordinator dispatches refreshes to provider strategies and writes
// the new credentials back to the token store.
type RefreshCoordinator struct {
	providers *provider.Registry
	tokens    repository.TokenRepository
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRefreshCoordinator constructs a coordinator with a bounded per-call timeout.
func NewRefreshCoordinator(providers *provider.Registry, tokens repository.TokenRepository, timeout time.Duration, logger *zap.Logger) *RefreshCoordinator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &RefreshCoordinator{providers: providers, tokens: tokens, timeout: timeout, logger: logger}
}

// Refresh exchanges the record's refresh token for fresh credentials and
// overwrites the stored row. Network failures get a short backoff inside the
// timeout; provider rejections are never retried. A timeout is a RefreshError,
// never silent success.
func (c *RefreshCoordinator) Refresh(ctx context.Context, rec *model.TokenRecord) (*model.TokenRecord, error) {
	strat, err := c.providers.Get(rec.Provider)
	if err != nil {
		return nil, err
	}

	// The timeout bounds the provider exchange only. The write-back below
	// runs on the parent context so a slow-but-successful exchange is still
	// persisted; losing it after a provider rotated the refresh token would
	// strand the connection.
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var creds provider.Credentials
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(200*time.Millisecond))
	err = retry.Do(pctx, backoff, func(ctx context.Context) error {
		var rerr error
		creds, rerr = strat.Refresh(ctx, rec.RefreshToken)
		var re *errs.RefreshError
		if errors.As(rerr, &re) && re.Kind == errs.RefreshNetwork {
			return retry.RetryableError(rerr)
		}
		return rerr
	})
	if err != nil {
		var re *errs.RefreshError
		if !errors.As(err, &re) {
			// context deadline or other transport-level failure
			err = &errs.RefreshError{Provider: rec.Provider, Kind: errs.RefreshNetwork, Err: err}
		}
		c.logger.Warn("token refresh failed",
			zap.String("provider", rec.Provider),
			zap.String("user_id", rec.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	refreshToken := rec.RefreshToken
	if creds.RefreshToken != "" {
		refreshToken = creds.RefreshToken // provider rotated
	}
	if err := c.tokens.UpdateCredentials(ctx, rec.UserID, rec.Provider, creds.AccessToken, refreshToken, creds.ExpiresAt); err != nil {
		return nil, err
	}

	updated := *rec
	updated.AccessToken = creds.AccessToken
	updated.RefreshToken = refreshToken
	exp := creds.ExpiresAt
	updated.ExpiresAt = &exp
	updated.IsValid = true
	return &updated, nil
}
