package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
	"github.com/postloom/postloom/internal/provider"
	"github.com/postloom/postloom/internal/repository"
)

// --- token repository fake ---

type fakeTokens struct {
	mu   sync.Mutex
	recs map[string]*model.TokenRecord

	getErr    error
	deleteErr error

	markInvalidCalls int
	updateCalls      int
	deleteCalls      int
}

var _ repository.TokenRepository = (*fakeTokens)(nil)

func tokenKey(userID uuid.UUID, provider string) string {
	return userID.String() + "/" + provider
}

func newFakeTokens(recs ...*model.TokenRecord) *fakeTokens {
	f := &fakeTokens{recs: map[string]*model.TokenRecord{}}
	for _, r := range recs {
		cpy := *r
		f.recs[tokenKey(r.UserID, r.Provider)] = &cpy
	}
	return f
}

func (f *fakeTokens) Get(_ context.Context, userID uuid.UUID, provider string) (*model.TokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.recs[tokenKey(userID, provider)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *r
	return &cpy, nil
}

func (f *fakeTokens) Upsert(_ context.Context, rec *model.TokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cpy := *rec
	f.recs[tokenKey(rec.UserID, rec.Provider)] = &cpy
	return nil
}

func (f *fakeTokens) UpdateCredentials(ctx context.Context, userID uuid.UUID, provider, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	r, ok := f.recs[tokenKey(userID, provider)]
	if !ok {
		return errs.ErrNotFound
	}
	r.AccessToken = accessToken
	r.RefreshToken = refreshToken
	exp := expiresAt
	r.ExpiresAt = &exp
	r.IsValid = true
	return nil
}

func (f *fakeTokens) MarkInvalid(_ context.Context, userID uuid.UUID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markInvalidCalls++
	r, ok := f.recs[tokenKey(userID, provider)]
	if !ok {
		return errs.ErrNotFound
	}
	r.IsValid = false
	return nil
}

func (f *fakeTokens) Delete(_ context.Context, userID uuid.UUID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.recs[tokenKey(userID, provider)]; !ok {
		return errs.ErrNotFound
	}
	delete(f.recs, tokenKey(userID, provider))
	return nil
}

// --- refresher fake ---

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
	fresh func(rec *model.TokenRecord) *model.TokenRecord
}

var _ Refresher = (*fakeRefresher)(nil)

func (f *fakeRefresher) Refresh(_ context.Context, rec *model.TokenRecord) (*model.TokenRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.fresh != nil {
		return f.fresh(rec), nil
	}
	exp := time.Now().Add(time.Hour)
	updated := *rec
	updated.AccessToken = "fresh-" + rec.AccessToken
	updated.ExpiresAt = &exp
	updated.IsValid = true
	return &updated, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- provider strategy stub ---

type stubStrategy struct {
	name         string
	refreshErr   error
	refreshDelay time.Duration
	rotated      string // refresh token returned by the provider, if any
	revokeErr    error

	refreshCalls int
	revokeCalls  int
}

var _ provider.Strategy = (*stubStrategy)(nil)

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Refresh(context.Context, string) (provider.Credentials, error) {
	s.refreshCalls++
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}
	if s.refreshErr != nil {
		return provider.Credentials{}, s.refreshErr
	}
	return provider.Credentials{AccessToken: "fresh", RefreshToken: s.rotated, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubStrategy) Revoke(context.Context, string) error {
	s.revokeCalls++
	return s.revokeErr
}

// --- subscriber repository fake ---

type fakeSubs struct {
	subs []*model.Subscriber
}

var _ repository.SubscriberRepository = (*fakeSubs)(nil)

func (f *fakeSubs) GetByID(_ context.Context, id uuid.UUID) (*model.Subscriber, error) {
	for _, s := range f.subs {
		if s.ID == id {
			cpy := *s
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeSubs) Resolve(_ context.Context, key string) (*model.Subscriber, error) {
	for _, match := range []func(*model.Subscriber) bool{
		func(s *model.Subscriber) bool { return s.Phone == key },
		func(s *model.Subscriber) bool { return s.Email == key },
		func(s *model.Subscriber) bool { return s.BillingRef == key },
	} {
		for _, s := range f.subs {
			if match(s) {
				cpy := *s
				return &cpy, nil
			}
		}
	}
	return nil, errs.ErrSubscriberNotFound
}

// --- post repository fake ---

type fakePosts struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*model.Post
}

var _ repository.PostRepository = (*fakePosts)(nil)

func newFakePosts(posts ...*model.Post) *fakePosts {
	f := &fakePosts{posts: map[uuid.UUID]*model.Post{}}
	for _, p := range posts {
		f.posts[p.ID] = p
	}
	return f
}

func (f *fakePosts) Get(_ context.Context, id uuid.UUID) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *p
	return &cpy, nil
}

// --- quota repository fake ---

// fakeQuotas mimics the settlement transaction: the deduction and the post
// marker stamp happen under one lock, like the real repo's row locks.
type fakeQuotas struct {
	mu     sync.Mutex
	cycles map[string]*model.QuotaCycle

	posts       *fakePosts // marker write-through, may be nil
	deductCalls int
	purged      int64
}

var _ repository.QuotaRepository = (*fakeQuotas)(nil)

func newFakeQuotas(posts *fakePosts) *fakeQuotas {
	return &fakeQuotas{cycles: map[string]*model.QuotaCycle{}, posts: posts}
}

func cycleKey(userID uuid.UUID, cycleName string) string {
	return userID.String() + "/" + cycleName
}

func (f *fakeQuotas) GetCycle(_ context.Context, userID uuid.UUID, cycleName string) (*model.QuotaCycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cycles[cycleKey(userID, cycleName)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *c
	return &cpy, nil
}

func (f *fakeQuotas) EnsureCycle(_ context.Context, c *model.QuotaCycle) (*model.QuotaCycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.cycles[cycleKey(c.UserID, c.CycleName)]; ok {
		cpy := *cur
		return &cpy, nil
	}
	cpy := *c
	f.cycles[cycleKey(c.UserID, c.CycleName)] = &cpy
	out := cpy
	return &out, nil
}

func (f *fakeQuotas) ListCycles(_ context.Context, userID uuid.UUID) ([]model.QuotaCycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuotaCycle
	for _, c := range f.cycles {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeQuotas) DeductForPost(_ context.Context, userID uuid.UUID, cycleName string, postID uuid.UUID) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deductCalls++

	c, ok := f.cycles[cycleKey(userID, cycleName)]
	if !ok {
		return 0, false, errs.ErrNotFound
	}

	var post *model.Post
	if f.posts != nil {
		f.posts.mu.Lock()
		defer f.posts.mu.Unlock()
		post = f.posts.posts[postID]
		if post == nil {
			return 0, false, errs.ErrNotFound
		}
		if post.SubscriptionCycle != nil {
			return c.TotalPostsAllowed - c.PostsUsed, true, nil
		}
	}

	if c.PostsUsed >= c.TotalPostsAllowed {
		return 0, false, errs.ErrQuotaExhausted
	}
	c.PostsUsed++
	c.SuccessfulPosts++
	if post != nil {
		marker := cycleName
		post.SubscriptionCycle = &marker
	}
	return c.TotalPostsAllowed - c.PostsUsed, false, nil
}

func (f *fakeQuotas) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, c := range f.cycles {
		if c.DataRetentionExpiry.Before(now) {
			delete(f.cycles, k)
			f.purged++
		}
	}
	return f.purged, nil
}
