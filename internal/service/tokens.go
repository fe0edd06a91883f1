// Package service contains application services for credential lifecycle and
// post-publish quota settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/provider"
	"github.com/postloom/postloom/internal/repository"
)

// TokenService resolves currently valid provider credentials, refreshing
// transparently and collapsing concurrent refreshes for the same
// (user, provider) pair into a single in-flight exchange.
type TokenService struct {
	tokens    repository.TokenRepository
	providers *provider.Registry
	refresher Refresher
	buffer    time.Duration
	logger    *zap.Logger

	flight singleflight.Group
	now    func() time.Time
}

// NewTokenService constructs a TokenService with the given expiry safety buffer.
func NewTokenService(tokens repository.TokenRepository, providers *provider.Registry, refresher Refresher, buffer time.Duration, logger *zap.Logger) *TokenService {
	if buffer <= 0 {
		buffer = RefreshSafetyBuffer
	}
	return &TokenService{
		tokens:    tokens,
		providers: providers,
		refresher: refresher,
		buffer:    buffer,
		logger:    logger,
		now:       time.Now,
	}
}

// GetValidToken returns a usable access token for (userID, provider).
//
// A token expiring within the safety buffer (or with no expiry at all) is
// refreshed first; concurrent callers for the same pair join the in-flight
// refresh instead of issuing duplicate provider calls. When refresh fails the
// last known token is returned with Valid=false so callers can distinguish
// "use with caution" from a hard failure.
func (s *TokenService) GetValidToken(ctx context.Context, userID uuid.UUID, providerName string) (model.AccessToken, error) {
	if !s.providers.Supported(providerName) {
		return model.AccessToken{}, fmt.Errorf("%q: %w", providerName, errs.ErrUnsupportedProvider)
	}

	rec, err := s.tokens.Get(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.AccessToken{}, errs.ErrNotConnected
		}
		return model.AccessToken{}, err
	}

	if !s.needsRefresh(rec) {
		return model.AccessToken{Token: rec.AccessToken, Valid: rec.IsValid}, nil
	}

	key := userID.String() + "/" + providerName
	v, err, _ := s.flight.Do(key, func() (any, error) {
		fresh, rerr := s.refresher.Refresh(ctx, rec)
		if rerr != nil {
			// Keep the row for the reconnect prompt; never delete here.
			if merr := s.tokens.MarkInvalid(ctx, userID, providerName); merr != nil && !errors.Is(merr, errs.ErrNotFound) {
				s.logger.Warn("mark token invalid",
					zap.String("provider", providerName),
					zap.String("user_id", userID.String()),
					zap.Error(merr),
				)
			}
			return nil, rerr
		}
		return fresh, nil
	})
	if err != nil {
		s.logger.Warn("serving stale token after failed refresh",
			zap.String("provider", providerName),
			zap.String("user_id", userID.String()),
		)
		return model.AccessToken{Token: rec.AccessToken, Valid: false}, nil
	}

	fresh := v.(*model.TokenRecord)
	return model.AccessToken{Token: fresh.AccessToken, Valid: true}, nil
}

// SaveAuthorizedToken persists the credential produced by the external
// authorization flow, overwriting any previous connection in place.
func (s *TokenService) SaveAuthorizedToken(ctx context.Context, rec *model.TokenRecord) error {
	if rec == nil || rec.UserID == uuid.Nil {
		return errors.New("validation: empty user id")
	}
	if !s.providers.Supported(rec.Provider) {
		return fmt.Errorf("%q: %w", rec.Provider, errs.ErrUnsupportedProvider)
	}
	if rec.AccessToken == "" {
		return errors.New("validation: empty access token")
	}
	rec.IsValid = true
	return s.tokens.Upsert(ctx, rec)
}

// needsRefresh treats a missing expiry as always expiring.
func (s *TokenService) needsRefresh(rec *model.TokenRecord) bool {
	if rec.ExpiresAt == nil {
		return true
	}
	return s.now().Add(s.buffer).After(*rec.ExpiresAt)
}
