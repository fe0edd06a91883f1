package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/postloom/postloom/internal/model"
)

// QuotaRepository provides access to per-cycle allotment rows.
type QuotaRepository interface {
	// GetCycle loads one cycle row.
	GetCycle(ctx context.Context, userID uuid.UUID, cycleName string) (*model.QuotaCycle, error)

	// EnsureCycle creates the row if absent and returns the stored cycle.
	EnsureCycle(ctx context.Context, c *model.QuotaCycle) (*model.QuotaCycle, error)

	// ListCycles returns a user's cycles, newest first.
	ListCycles(ctx context.Context, userID uuid.UUID) ([]model.QuotaCycle, error)

	// DeductForPost atomically re-checks the post's settlement marker,
	// decrements the remaining allotment by one and stamps the marker, all
	// in a single transaction with row locks. It reports the remaining
	// count and whether the post had already been counted.
	DeductForPost(ctx context.Context, userID uuid.UUID, cycleName string, postID uuid.UUID) (remaining int, alreadyCounted bool, err error)

	// PurgeExpired deletes cycles whose retention expiry has passed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
