package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ResetRepo implements ResetRepository using PostgreSQL.
type ResetRepo struct{ db *DB }

// NewResetRepo constructs a password reset repository.
func NewResetRepo(db *DB) *ResetRepo { return &ResetRepo{db: db} }

// Create stores a reset token digest.
func (r *ResetRepo) Create(ctx context.Context, pr *model.PasswordReset) error {
	const q = `
INSERT INTO password_resets (id, user_id, token_hash, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, pr.ID, pr.UserID, pr.TokenHash, pr.ExpiresAt)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// Consume redeems a token and rewrites the owner's password hash.
// Returns ErrNotFound if the token is unknown, used or expired.
func (r *ResetRepo) Consume(ctx context.Context, digest []byte, now time.Time, pwdHash []byte) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `
SELECT user_id FROM password_resets
WHERE token_hash=$1 AND used_at IS NULL AND expires_at > $2
FOR UPDATE`
		if err := tx.QueryRow(ctx, sel, digest, now).Scan(&userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET pwd_hash=$2, updated_at=now() WHERE id=$1`, userID, pwdHash); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE password_resets SET used_at=$2 WHERE user_id=$1 AND used_at IS NULL`, userID, now)
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
