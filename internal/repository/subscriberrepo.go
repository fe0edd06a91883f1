package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/postloom/postloom/internal/model"
)

// SubscriberRepository provides read access to billing accounts.
type SubscriberRepository interface {
	// GetByID loads a subscriber by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Subscriber, error)

	// Resolve finds a subscriber by an opaque key, trying phone, then
	// email, then external billing reference.
	Resolve(ctx context.Context, key string) (*model.Subscriber, error)
}

// PostRepository provides read access to posts owned by the posting
// subsystem. The settlement marker is written only inside
// QuotaRepository.DeductForPost.
type PostRepository interface {
	// Get loads a post by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Post, error)
}
