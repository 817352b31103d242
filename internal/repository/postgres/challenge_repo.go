package postgres

import (
	"context"
	"errors"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/jackc/pgx/v5"
)

// ChallengeRepo implements ChallengeRepository using PostgreSQL.
type ChallengeRepo struct{ db *DB }

// NewChallengeRepo constructs a challenge repository.
func NewChallengeRepo(db *DB) *ChallengeRepo { return &ChallengeRepo{db: db} }

const challengeCols = `id, title, description, created_at`

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var c model.Challenge
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns all challenges ordered by id.
func (r *ChallengeRepo) List(ctx context.Context) ([]model.Challenge, error) {
	const q = `SELECT ` + challengeCols + ` FROM challenges ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Challenge{}
	for rows.Next() {
		var c model.Challenge
		if err = rows.Scan(&c.ID, &c.Title, &c.Description, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the catalog size.
func (r *ChallengeRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM challenges`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetAtOffset returns the challenge at a zero-based position in id order.
func (r *ChallengeRepo) GetAtOffset(ctx context.Context, offset int64) (*model.Challenge, error) {
	const q = `SELECT ` + challengeCols + ` FROM challenges ORDER BY id ASC OFFSET $1 LIMIT 1`
	return scanChallenge(r.db.Pool.QueryRow(ctx, q, offset))
}

// Create inserts one challenge.
func (r *ChallengeRepo) Create(ctx context.Context, in model.ChallengeInput) (*model.Challenge, error) {
	const q = `
INSERT INTO challenges (title, description) VALUES ($1, $2)
RETURNING ` + challengeCols
	return scanChallenge(r.db.Pool.QueryRow(ctx, q, in.Title, in.Description))
}

// CreateBatch inserts all rows atomically and returns them in input order.
func (r *ChallengeRepo) CreateBatch(ctx context.Context, in []model.ChallengeInput) ([]model.Challenge, error) {
	out := make([]model.Challenge, 0, len(in))
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		const ins = `
INSERT INTO challenges (title, description) VALUES ($1, $2)
RETURNING ` + challengeCols
		for _, c := range in {
			created, err := scanChallenge(tx.QueryRow(ctx, ins, c.Title, c.Description))
			if err != nil {
				return err
			}
			out = append(out, *created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites title and description.
func (r *ChallengeRepo) Update(ctx context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error) {
	const q = `
UPDATE challenges SET title=$2, description=$3
WHERE id=$1
RETURNING ` + challengeCols
	return scanChallenge(r.db.Pool.QueryRow(ctx, q, id, in.Title, in.Description))
}

// Delete removes a challenge and every saved copy of it.
func (r *ChallengeRepo) Delete(ctx context.Context, id int64) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_challenges WHERE challenge_id=$1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM challenges WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
