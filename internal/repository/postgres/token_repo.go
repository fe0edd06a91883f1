package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/postloom/postloom/internal/crypto"
	"github.com/postloom/postloom/internal/errs"
	"github.com/postloom/postloom/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL. Access and refresh
// tokens are sealed with the injected cipher before they reach the database.
type TokenRepo struct {
	db     *DB
	cipher *crypto.Cipher
}

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB, cipher *crypto.Cipher) *TokenRepo {
	return &TokenRepo{db: db, cipher: cipher}
}

// Get loads the credential row for (user, provider).
func (r *TokenRepo) Get(ctx context.Context, userID uuid.UUID, provider string) (*model.TokenRecord, error) {
	const q = `
SELECT user_id, provider, access_token, refresh_token, expires_at, scope, is_valid, updated_at
FROM provider_tokens WHERE user_id=$1 AND provider=$2`
	row := r.db.Pool.QueryRow(ctx, q, userID, provider)

	var (
		rec           model.TokenRecord
		accessSealed  []byte
		refreshSealed []byte
	)
	err := row.Scan(&rec.UserID, &rec.Provider, &accessSealed, &refreshSealed,
		&rec.ExpiresAt, &rec.Scope, &rec.IsValid, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if rec.AccessToken, err = r.cipher.Open(accessSealed); err != nil {
		return nil, err
	}
	if rec.RefreshToken, err = r.cipher.Open(refreshSealed); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert creates or overwrites the row for (user, provider). A reconnect
// replaces the credential in place, never appends.
func (r *TokenRepo) Upsert(ctx context.Context, rec *model.TokenRecord) error {
	accessSealed, err := r.cipher.Seal(rec.AccessToken)
	if err != nil {
		return err
	}
	refreshSealed, err := r.cipher.Seal(rec.RefreshToken)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO provider_tokens (user_id, provider, access_token, refresh_token, expires_at, scope, is_valid, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,now())
ON CONFLICT (user_id, provider) DO UPDATE
SET access_token=EXCLUDED.access_token,
    refresh_token=EXCLUDED.refresh_token,
    expires_at=EXCLUDED.expires_at,
    scope=EXCLUDED.scope,
    is_valid=EXCLUDED.is_valid,
    updated_at=now()`
	_, err = r.db.Pool.Exec(ctx, q, rec.UserID, rec.Provider, accessSealed, refreshSealed,
		rec.ExpiresAt, rec.Scope, rec.IsValid)
	return err
}

// UpdateCredentials overwrites tokens and expiry after a successful refresh.
func (r *TokenRepo) UpdateCredentials(ctx context.Context, userID uuid.UUID, provider, accessToken, refreshToken string, expiresAt time.Time) error {
	accessSealed, err := r.cipher.Seal(accessToken)
	if err != nil {
		return err
	}
	refreshSealed, err := r.cipher.Seal(refreshToken)
	if err != nil {
		return err
	}

	const q = `
UPDATE provider_tokens
SET access_token=$3, refresh_token=$4, expires_at=$5, is_valid=true, updated_at=now()
WHERE user_id=$1 AND provider=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, provider, accessSealed, refreshSealed, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkInvalid flags the row after a definitive refresh failure. The row is
// kept so the user sees "needs reconnect" instead of a vanished connection.
func (r *TokenRepo) MarkInvalid(ctx context.Context, userID uuid.UUID, provider string) error {
	const q = `UPDATE provider_tokens SET is_valid=false, updated_at=now() WHERE user_id=$1 AND provider=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes the credential row.
func (r *TokenRepo) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	const q = `DELETE FROM provider_tokens WHERE user_id=$1 AND provider=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, provider)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
