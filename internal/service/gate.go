package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/provider"
	"github.com/postloom/postloom/internal/repository"
)

// platformMarkers maps each platform to the analytics field proving the
// platform accepted the publish. A "published" status without this field is
// unverifiable, not a success: a 200-level response does not guarantee the
// platform kept the post.
var platformMarkers = map[string]string{
	provider.Facebook:  "post_id",
	provider.Instagram: "media_id",
	provider.LinkedIn:  "share_urn",
	provider.YouTube:   "video_id",
	provider.Twitter:   "tweet_id",
}

// GateService settles quota for published posts: verify the publish, resolve
// the owning subscriber, deduct exactly once. The post's subscription-cycle
// marker is the idempotency token; retries of the same settlement are safe.
type GateService struct {
	posts      repository.PostRepository
	subs       repository.SubscriberRepository
	quotas     repository.QuotaRepository
	ledger     *QuotaService
	staleAfter time.Duration
	bulkDelay  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewGateService constructs a GateService.
func NewGateService(posts repository.PostRepository, subs repository.SubscriberRepository, quotas repository.QuotaRepository, ledger *QuotaService, staleAfter, bulkDelay time.Duration, logger *zap.Logger) *GateService {
	if staleAfter <= 0 {
		staleAfter = PostStalenessWindow
	}
	if bulkDelay <= 0 {
		bulkDelay = BulkItemDelay
	}
	return &GateService{
		posts:      posts,
		subs:       subs,
		quotas:     quotas,
		ledger:     ledger,
		staleAfter: staleAfter,
		bulkDelay:  bulkDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckAndDeduct verifies one published post and deducts quota for it at most
// once. Verification failures never touch the ledger.
func (s *GateService) CheckAndDeduct(ctx context.Context, subscriberKey string, postID uuid.UUID) (model.SettlementResult, error) {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return verificationFailure("post not found"), nil
		}
		return model.SettlementResult{}, err
	}
	if reason := s.verify(post); reason != "" {
		return verificationFailure(reason), nil
	}

	sub, err := s.subs.Resolve(ctx, subscriberKey)
	if err != nil {
		if errors.Is(err, errs.ErrSubscriberNotFound) {
			// Integrity problem between the posting subsystem and billing.
			s.logger.Error("no subscriber for settlement key",
				zap.String("post_id", postID.String()),
			)
			return model.SettlementResult{PostVerified: true, Reason: "subscriber not found"}, errs.ErrSubscriberNotFound
		}
		return model.SettlementResult{}, err
	}

	// The resolved subscriber must own the post. Settling against someone
	// else's cycle would charge the wrong account and stamp the post so the
	// real owner is never charged.
	if post.UserID != sub.ID {
		s.logger.Error("settlement key resolves to a subscriber who does not own the post",
			zap.String("post_id", postID.String()),
			zap.String("post_owner", post.UserID.String()),
			zap.String("resolved_subscriber", sub.ID.String()),
		)
		return model.SettlementResult{PostVerified: true, Reason: "post belongs to a different subscriber"}, errs.ErrPostOwnershipMismatch
	}

	qc, err := s.ledger.CurrentCycle(ctx, sub)
	if err != nil {
		return model.SettlementResult{}, err
	}

	// Short-circuit: the marker is already stamped, so quota was settled by
	// an earlier call. Report the current remaining count untouched.
	if post.SubscriptionCycle != nil {
		return model.SettlementResult{
			Success:        true,
			PostVerified:   true,
			QuotaDeducted:  true,
			AlreadyCounted: true,
			RemainingPosts: qc.TotalPostsAllowed - qc.PostsUsed,
		}, nil
	}

	remaining, already, err := s.quotas.DeductForPost(ctx, sub.ID, qc.CycleName, postID)
	if err != nil {
		if errors.Is(err, errs.ErrQuotaExhausted) {
			return model.SettlementResult{
				PostVerified: true,
				Reason:       fmt.Sprintf("allotment of %d posts exhausted for cycle %s", qc.TotalPostsAllowed, qc.CycleName),
			}, errs.ErrQuotaExhausted
		}
		return model.SettlementResult{}, err
	}

	return model.SettlementResult{
		Success:        true,
		PostVerified:   true,
		QuotaDeducted:  true,
		AlreadyCounted: already,
		RemainingPosts: remaining,
	}, nil
}

// BulkCheckAndDeduct settles many posts sequentially with a small spacing
// delay. One post's failure never aborts the batch.
func (s *GateService) BulkCheckAndDeduct(ctx context.Context, subscriberKey string, postIDs []uuid.UUID) (map[uuid.UUID]model.SettlementResult, error) {
	out := make(map[uuid.UUID]model.SettlementResult, len(postIDs))
	for i, id := range postIDs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(s.bulkDelay):
			}
		}
		res, err := s.CheckAndDeduct(ctx, subscriberKey, id)
		if err != nil && res.Reason == "" {
			res.Reason = err.Error()
		}
		out[id] = res
	}
	return out, nil
}

// verify returns an empty string for a verifiable publish, or the specific
// failure reason.
func (s *GateService) verify(post *model.Post) string {
	if post.Status != model.PostStatusPublished {
		return fmt.Sprintf("post status %q is not a terminal success", post.Status)
	}
	if post.PublishedAt == nil {
		return "post has no publish timestamp"
	}
	if s.now().Sub(*post.PublishedAt) > s.staleAfter {
		return "publish is older than the staleness window"
	}
	markerField, ok := platformMarkers[post.Platform]
	if !ok {
		return fmt.Sprintf("unknown platform %q", post.Platform)
	}
	if v, ok := post.Analytics[markerField].(string); !ok || v == "" {
		return fmt.Sprintf("missing %s confirmation marker %q", post.Platform, markerField)
	}
	return ""
}

func verificationFailure(reason string) model.SettlementResult {
	return model.SettlementResult{Reason: reason}
}
