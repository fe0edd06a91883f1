package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/cycle"
	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/repository"
)

// PlanAllowances maps a subscription plan to posts allowed per cycle.
type PlanAllowances map[string]int

// DefaultPlanAllowances is the built-in plan catalog; deployments override
// it via configuration.
func DefaultPlanAllowances() PlanAllowances {
	return PlanAllowances{
		"starter": 10,
		"growth":  30,
		"scale":   100,
	}
}

// QuotaService owns billing-cycle rows: lazy creation, allotment checks and
// reporting. Cycle rows are only ever written through this service and the
// gate's settlement transaction.
type QuotaService struct {
	quotas    repository.QuotaRepository
	subs      repository.SubscriberRepository
	plans     PlanAllowances
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuotaService constructs a QuotaService.
func NewQuotaService(quotas repository.QuotaRepository, subs repository.SubscriberRepository, plans PlanAllowances, retention time.Duration, logger *zap.Logger) *QuotaService {
	if len(plans) == 0 {
		plans = DefaultPlanAllowances()
	}
	if retention <= 0 {
		retention = RetentionWindow
	}
	return &QuotaService{
		quotas:    quotas,
		subs:      subs,
		plans:     plans,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// CurrentCycle loads or lazily creates the quota row for the subscriber's
// current anniversary window. The stored row keeps the natural cycle bounds;
// only the reported window clamps an in-progress end to "now".
func (s *QuotaService) CurrentCycle(ctx context.Context, sub *model.Subscriber) (*model.QuotaCycle, error) {
	allowed, ok := s.plans[sub.SubscriptionPlan]
	if !ok {
		return nil, fmt.Errorf("plan %q has no configured allowance", sub.SubscriptionPlan)
	}

	w := cycle.Current(sub.SubscriptionStart, s.now())
	natural := cycle.NaturalEnd(sub.SubscriptionStart, w.Index)
	row := &model.QuotaCycle{
		UserID:              sub.ID,
		CycleName:           w.Name,
		SubscriptionPlan:    sub.SubscriptionPlan,
		TotalPostsAllowed:   allowed,
		CycleStartDate:      w.Start,
		CycleEndDate:        natural,
		DataRetentionExpiry: natural.Add(s.retention),
	}
	return s.quotas.EnsureCycle(ctx, row)
}

// CanCreatePost reports whether the subscriber has allotment left in the
// current cycle. The reason names the exhausted allotment for the user.
func (s *QuotaService) CanCreatePost(ctx context.Context, userID uuid.UUID) (model.QuotaDecision, error) {
	sub, err := s.subs.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.QuotaDecision{}, errs.ErrSubscriberNotFound
		}
		return model.QuotaDecision{}, err
	}

	qc, err := s.CurrentCycle(ctx, sub)
	if err != nil {
		return model.QuotaDecision{}, err
	}

	remaining := qc.TotalPostsAllowed - qc.PostsUsed
	if remaining <= 0 {
		return model.QuotaDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("monthly allotment of %d posts is used up", qc.TotalPostsAllowed),
		}, nil
	}
	return model.QuotaDecision{Allowed: true, Remaining: remaining}, nil
}

// AvailableCycles lists a subscriber's quota cycles for reporting/export.
func (s *QuotaService) AvailableCycles(ctx context.Context, userID uuid.UUID) ([]model.QuotaCycle, error) {
	return s.quotas.ListCycles(ctx, userID)
}

// PurgeExpiredCycles deletes cycles past their retention expiry. Invoked by
// an external janitor.
func (s *QuotaService) PurgeExpiredCycles(ctx context.Context) (int64, error) {
	n, err := s.quotas.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired quota cycles", zap.Int64("count", n))
	}
	return n, nil
}
