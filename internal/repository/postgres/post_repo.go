package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
)

// PostRepo implements PostRepository using PostgreSQL. Posts belong to the
// posting subsystem; this repo only reads them (the settlement marker is
// written inside QuotaRepo.DeductForPost).
type PostRepo struct{ db *DB }

// NewPostRepo constructs a post repository.
func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

// Get loads a post by ID, including its recorded analytics payload.
func (r *PostRepo) Get(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	const q = `
SELECT id, user_id, platform, status, published_at, subscription_cycle, analytics
FROM posts WHERE id=$1`
	row := r.db.Pool.QueryRow(ctx, q, id)

	var (
		p        model.Post
		rawStats []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Platform, &p.Status, &p.PublishedAt, &p.SubscriptionCycle, &rawStats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if len(rawStats) > 0 {
		if err := json.Unmarshal(rawStats, &p.Analytics); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
