// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/postloom/postloom/internal/model"
)

// TokenRepository provides CRUD access to provider credentials.
// All writes to credential rows go through this interface; no other
// component touches them directly.
type TokenRepository interface {
	// Get loads the record for (user, provider).
	Get(ctx context.Context, userID uuid.UUID, provider string) (*model.TokenRecord, error)

	// Upsert creates or overwrites the record for (user, provider) in place.
	Upsert(ctx context.Context, rec *model.TokenRecord) error

	// UpdateCredentials overwrites tokens and expiry after a successful
	// refresh and marks the row valid again.
	UpdateCredentials(ctx context.Context, userID uuid.UUID, provider, accessToken, refreshToken string, expiresAt time.Time) error

	// MarkInvalid flags the record after a definitive refresh failure.
	// The row is kept so the dashboard can show "needs reconnect".
	MarkInvalid(ctx context.Context, userID uuid.UUID, provider string) error

	// Delete removes the record.
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}
