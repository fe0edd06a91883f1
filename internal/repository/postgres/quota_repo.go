package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
)

// QuotaRepo implements QuotaRepository using PostgreSQL.
type QuotaRepo struct{ db *DB }

// NewQuotaRepo constructs a quota repository.
func NewQuotaRepo(db *DB) *QuotaRepo { return &QuotaRepo{db: db} }

const cycleColumns = `user_id, cycle_name, subscription_plan, total_posts_allowed, posts_used, successful_posts, cycle_start_date, cycle_end_date, data_retention_expiry`

func scanCycle(row pgx.Row) (*model.QuotaCycle, error) {
	var c model.QuotaCycle
	err := row.Scan(&c.UserID, &c.CycleName, &c.SubscriptionPlan, &c.TotalPostsAllowed,
		&c.PostsUsed, &c.SuccessfulPosts, &c.CycleStartDate, &c.CycleEndDate, &c.DataRetentionExpiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetCycle loads one cycle row.
func (r *QuotaRepo) GetCycle(ctx context.Context, userID uuid.UUID, cycleName string) (*model.QuotaCycle, error) {
	const q = `SELECT ` + cycleColumns + ` FROM quota_cycles WHERE user_id=$1 AND cycle_name=$2`
	return scanCycle(r.db.Pool.QueryRow(ctx, q, userID, cycleName))
}

// EnsureCycle lazily creates the cycle row on first access. Concurrent
// creators collide on the (user_id, cycle_name) key and both observe the
// single surviving row.
func (r *QuotaRepo) EnsureCycle(ctx context.Context, c *model.QuotaCycle) (*model.QuotaCycle, error) {
	const ins = `
INSERT INTO quota_cycles (` + cycleColumns + `)
VALUES ($1,$2,$3,$4,0,0,$5,$6,$7)
ON CONFLICT (user_id, cycle_name) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, ins, c.UserID, c.CycleName, c.SubscriptionPlan,
		c.TotalPostsAllowed, c.CycleStartDate, c.CycleEndDate, c.DataRetentionExpiry)
	if err != nil {
		return nil, err
	}
	return r.GetCycle(ctx, c.UserID, c.CycleName)
}

// ListCycles returns a user's cycles, newest first.
func (r *QuotaRepo) ListCycles(ctx context.Context, userID uuid.UUID) ([]model.QuotaCycle, error) {
	const q = `SELECT ` + cycleColumns + ` FROM quota_cycles WHERE user_id=$1 ORDER BY cycle_start_date DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QuotaCycle
	for rows.Next() {
		var c model.QuotaCycle
		if err = rows.Scan(&c.UserID, &c.CycleName, &c.SubscriptionPlan, &c.TotalPostsAllowed,
			&c.PostsUsed, &c.SuccessfulPosts, &c.CycleStartDate, &c.CycleEndDate, &c.DataRetentionExpiry); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeductForPost settles quota for one post in a single transaction.
//
// Both rows are locked FOR UPDATE, so two concurrent settlements for the same
// post serialize: the loser re-reads the marker after the winner commits and
// reports alreadyCounted instead of decrementing a second time. The decrement
// and the marker stamp commit together or not at all.
func (r *QuotaRepo) DeductForPost(
	ctx context.Context, userID uuid.UUID, cycleName string, postID uuid.UUID,
) (remaining int, alreadyCounted bool, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const selCycle = `SELECT total_posts_allowed, posts_used FROM quota_cycles WHERE user_id=$1 AND cycle_name=$2 FOR UPDATE`
	var total, used int
	if err = tx.QueryRow(ctx, selCycle, userID, cycleName).Scan(&total, &used); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = errs.ErrNotFound
		}
		return 0, false, err
	}

	const selPost = `SELECT subscription_cycle FROM posts WHERE id=$1 FOR UPDATE`
	var marker *string
	if err = tx.QueryRow(ctx, selPost, postID).Scan(&marker); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = errs.ErrNotFound
		}
		return 0, false, err
	}
	if marker != nil {
		return total - used, true, nil
	}

	if used >= total {
		err = errs.ErrQuotaExhausted
		return 0, false, err
	}

	const updCycle = `UPDATE quota_cycles SET posts_used=posts_used+1, successful_posts=successful_posts+1 WHERE user_id=$1 AND cycle_name=$2`
	if _, err = tx.Exec(ctx, updCycle, userID, cycleName); err != nil {
		return 0, false, err
	}
	const updPost = `UPDATE posts SET subscription_cycle=$2 WHERE id=$1`
	if _, err = tx.Exec(ctx, updPost, postID, cycleName); err != nil {
		return 0, false, err
	}
	return total - used - 1, false, nil
}

// PurgeExpired deletes cycle rows whose retention window has passed.
func (r *QuotaRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM quota_cycles WHERE data_retention_expiry < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
