package service

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
)

var quotaTestNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func starterSubscriber() *model.Subscriber {
	return &model.Subscriber{
		ID:                uuid.Must(uuid.NewV4()),
		Phone:             "+15550001111",
		Email:             "pat@example.com",
		BillingRef:        "bill-001",
		SubscriptionPlan:  "starter",
		SubscriptionStart: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func newQuotaService(quotas *fakeQuotas, subs *fakeSubs) *QuotaService {
	svc := NewQuotaService(quotas, subs, nil, 0, zap.NewNop())
	svc.now = func() time.Time { return quotaTestNow }
	return svc
}

func TestCurrentCycle_LazyCreation(t *testing.T) {
	sub := starterSubscriber()
	quotas := newFakeQuotas(nil)
	svc := newQuotaService(quotas, &fakeSubs{subs: []*model.Subscriber{sub}})

	qc, err := svc.CurrentCycle(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, "2026-08-10", qc.CycleName)
	require.Equal(t, 10, qc.TotalPostsAllowed)
	require.Equal(t, 0, qc.PostsUsed)
	// Natural bounds, not clamped to now.
	require.Equal(t, time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC), qc.CycleEndDate)
	require.Equal(t, qc.CycleEndDate.Add(90*24*time.Hour), qc.DataRetentionExpiry)

	// Second call finds the existing row instead of resetting the counter.
	quotas.mu.Lock()
	quotas.cycles[cycleKey(sub.ID, "2026-08-10")].PostsUsed = 4
	quotas.mu.Unlock()

	again, err := svc.CurrentCycle(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, 4, again.PostsUsed)
	require.Len(t, quotas.cycles, 1)
}

func TestCurrentCycle_UnknownPlan(t *testing.T) {
	sub := starterSubscriber()
	sub.SubscriptionPlan = "enterprise"
	svc := newQuotaService(newFakeQuotas(nil), &fakeSubs{})

	_, err := svc.CurrentCycle(context.Background(), sub)
	require.Error(t, err)
	require.Contains(t, err.Error(), "enterprise")
}

func TestCanCreatePost_Allowed(t *testing.T) {
	sub := starterSubscriber()
	svc := newQuotaService(newFakeQuotas(nil), &fakeSubs{subs: []*model.Subscriber{sub}})

	d, err := svc.CanCreatePost(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 10, d.Remaining)
	require.Empty(t, d.Reason)
}

func TestCanCreatePost_Exhausted(t *testing.T) {
	sub := starterSubscriber()
	quotas := newFakeQuotas(nil)
	svc := newQuotaService(quotas, &fakeSubs{subs: []*model.Subscriber{sub}})

	// Burn the whole allotment first.
	qc, err := svc.CurrentCycle(context.Background(), sub)
	require.NoError(t, err)
	quotas.mu.Lock()
	quotas.cycles[cycleKey(sub.ID, qc.CycleName)].PostsUsed = qc.TotalPostsAllowed
	quotas.mu.Unlock()

	d, err := svc.CanCreatePost(context.Background(), sub.ID)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "10")
}

func TestCanCreatePost_SubscriberMissing(t *testing.T) {
	svc := newQuotaService(newFakeQuotas(nil), &fakeSubs{})

	_, err := svc.CanCreatePost(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrSubscriberNotFound)
}

func TestAvailableCycles(t *testing.T) {
	sub := starterSubscriber()
	quotas := newFakeQuotas(nil)
	svc := newQuotaService(quotas, &fakeSubs{subs: []*model.Subscriber{sub}})

	_, err := svc.CurrentCycle(context.Background(), sub)
	require.NoError(t, err)

	cycles, err := svc.AvailableCycles(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	require.Equal(t, "2026-08-10", cycles[0].CycleName)

	other, err := svc.AvailableCycles(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestPurgeExpiredCycles(t *testing.T) {
	sub := starterSubscriber()
	quotas := newFakeQuotas(nil)
	svc := newQuotaService(quotas, &fakeSubs{subs: []*model.Subscriber{sub}})

	quotas.cycles[cycleKey(sub.ID, "2025-01-10")] = &model.QuotaCycle{
		UserID:              sub.ID,
		CycleName:           "2025-01-10",
		DataRetentionExpiry: quotaTestNow.Add(-time.Hour),
	}
	_, err := svc.CurrentCycle(context.Background(), sub)
	require.NoError(t, err)

	n, err := svc.PurgeExpiredCycles(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, quotas.cycles, 1)
}
