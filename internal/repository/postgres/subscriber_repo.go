package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
)

// SubscriberRepo implements SubscriberRepository using PostgreSQL.
type SubscriberRepo struct{ db *DB }

// NewSubscriberRepo constructs a subscriber repository.
func NewSubscriberRepo(db *DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `id, phone, email, billing_ref, subscription_plan, subscription_start`

func scanSubscriber(row pgx.Row) (*model.Subscriber, error) {
	var s model.Subscriber
	err := row.Scan(&s.ID, &s.Phone, &s.Email, &s.BillingRef, &s.SubscriptionPlan, &s.SubscriptionStart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID loads a subscriber by ID.
func (r *SubscriberRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Subscriber, error) {
	const q = `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id=$1`
	return scanSubscriber(r.db.Pool.QueryRow(ctx, q, id))
}

// Resolve finds a subscriber by an opaque key. Lookup order is fixed:
// phone, then email, then external billing reference.
func (r *SubscriberRepo) Resolve(ctx context.Context, key string) (*model.Subscriber, error) {
	queries := []string{
		`SELECT ` + subscriberColumns + ` FROM subscribers WHERE phone=$1`,
		`SELECT ` + subscriberColumns + ` FROM subscribers WHERE email=$1`,
		`SELECT ` + subscriberColumns + ` FROM subscribers WHERE billing_ref=$1`,
	}
	for _, q := range queries {
		s, err := scanSubscriber(r.db.Pool.QueryRow(ctx, q, key))
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errs.ErrSubscriberNotFound
}
