package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/provider"
	"github.com/postloom/postloom/internal/repository"
)

// RevocationService disconnects a provider: best-effort remote revocation
// followed by guaranteed local deletion. Local state must never retain a
// credential the user believes is disconnected.
type RevocationService struct {
	tokens    repository.TokenRepository
	providers *provider.Registry
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRevocationService constructs a RevocationService.
func NewRevocationService(tokens repository.TokenRepository, providers *provider.Registry, timeout time.Duration, logger *zap.Logger) *RevocationService {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &RevocationService{tokens: tokens, providers: providers, timeout: timeout, logger: logger}
}

// Revoke removes the (user, provider) connection. A provider-side failure is
// reported as a partial result, never as an error, and never blocks the
// local delete.
func (s *RevocationService) Revoke(ctx context.Context, userID uuid.UUID, providerName string) (model.RevokeResult, error) {
	strat, err := s.providers.Get(providerName)
	if err != nil {
		return model.RevokeResult{}, err
	}

	rec, err := s.tokens.Get(ctx, userID, providerName)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.RevokeResult{}, errs.ErrNotConnected
		}
		return model.RevokeResult{}, err
	}

	res := model.RevokeResult{ProviderRevoked: true}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	if rerr := strat.Revoke(rctx, rec.AccessToken); rerr != nil {
		res.ProviderRevoked = false
		res.ProviderError = rerr.Error()
		s.logger.Warn("provider revocation failed",
			zap.String("provider", providerName),
			zap.String("user_id", userID.String()),
			zap.Error(rerr),
		)
	}
	cancel()

	if err := s.tokens.Delete(ctx, userID, providerName); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return res, err
	}
	return res, nil
}
