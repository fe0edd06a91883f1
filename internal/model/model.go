// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TokenRecord is one platform credential for one user. At most one record
// exists per (user, provider) pair; refresh and reconnect overwrite in place.
type TokenRecord struct {
	UserID       uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken string     // empty if the provider issued none
	ExpiresAt    *time.Time // nil means "treat as always expiring"
	Scope        []string
	IsValid      bool // false once a refresh attempt definitively fails
	UpdatedAt    time.Time
}

// AccessToken is the result of resolving a usable credential.
// Valid=false means the token is the last known value after a failed refresh:
// the user needs to reconnect.
type AccessToken struct {
	Token string
	Valid bool
}

// Subscriber is a billing account owning credentials and quota cycles.
type Subscriber struct {
	ID                uuid.UUID
	Phone             string
	Email             string
	BillingRef        string // external billing reference
	SubscriptionPlan  string
	SubscriptionStart time.Time
}

// QuotaCycle is one subscriber's allotment for one anniversary-based
// billing period. Exactly one row exists per (user, cycle name).
type QuotaCycle struct {
	UserID              uuid.UUID
	CycleName           string
	SubscriptionPlan    string
	TotalPostsAllowed   int
	PostsUsed           int
	SuccessfulPosts     int
	CycleStartDate      time.Time
	CycleEndDate        time.Time
	DataRetentionExpiry time.Time
}

// PostStatusPublished is the only terminal success status the settlement
// gate accepts.
const PostStatusPublished = "published"

// Post is owned by the posting subsystem; this core only reads it and writes
// SubscriptionCycle, the idempotency marker that proves quota was settled.
type Post struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Platform          string
	Status            string
	PublishedAt       *time.Time
	SubscriptionCycle *string        // nil until quota has been deducted
	Analytics         map[string]any // platform response payload
}

// RevokeResult reports the outcome of a disconnect. The local record is
// always gone when Revoke returns without error; ProviderRevoked=false marks
// a partial failure on the provider side.
type RevokeResult struct {
	ProviderRevoked bool
	ProviderError   string
}

// QuotaDecision answers "may this subscriber publish another post".
type QuotaDecision struct {
	Allowed   bool
	Remaining int
	Reason    string
}

// SettlementResult is the per-post outcome of the verification gate.
type SettlementResult struct {
	Success        bool
	PostVerified   bool
	QuotaDeducted  bool
	AlreadyCounted bool
	RemainingPosts int
	Reason         string
}
