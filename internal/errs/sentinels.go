// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotConnected indicates no credential on file; the user must (re)authorize.
	ErrNotConnected = errors.New("provider not connected")

	// ErrUnsupportedProvider indicates a provider outside the configured set.
	// Programming/config error; callers must not retry.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrNoRefreshToken indicates the stored credential has no refresh token
	// (legacy providers require a full re-authorization instead).
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrQuotaExhausted indicates the cycle allotment is fully used.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrSubscriberNotFound indicates the posting subsystem referenced a key
	// with no matching billing record.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrPostOwnershipMismatch indicates a settlement key that resolves to a
	// subscriber who does not own the post. Integrity error; never settled.
	ErrPostOwnershipMismatch = errors.New("post owned by different subscriber")
)

// RefreshKind classifies why a token refresh failed.
type RefreshKind string

const (
	RefreshNetwork  RefreshKind = "network"
	RefreshRejected RefreshKind = "provider_rejected"
	RefreshNoToken  RefreshKind = "no_refresh_token"
)

// RefreshError reports a failed provider token-refresh exchange.
// Payload carries the provider's error body when one was returned.
type RefreshError struct {
	Provider string
	Kind     RefreshKind
	Payload  string
	Err      error
}

func (e *RefreshError) Error() string {
	if e.Payload != "" {
		return fmt.Sprintf("refresh %s (%s): %v: %s", e.Provider, e.Kind, e.Err, e.Payload)
	}
	return fmt.Sprintf("refresh %s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
