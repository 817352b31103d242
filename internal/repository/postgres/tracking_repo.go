package postgres

import (
	"context"
	"errors"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TrackingRepo implements TrackingRepository using PostgreSQL.
type TrackingRepo struct{ db *DB }

// NewTrackingRepo constructs a saved-challenge repository.
func NewTrackingRepo(db *DB) *TrackingRepo { return &TrackingRepo{db: db} }

// trackingSelect joins a user_challenges row source aliased uc with its challenge.
const trackingSelect = `
SELECT uc.id, uc.user_id, uc.challenge_id, uc.status, uc.created_at, uc.completed_at,
       c.id, c.title, c.description, c.created_at`

func scanTracking(row pgx.Row) (*model.UserChallenge, error) {
	var (
		uc     model.UserChallenge
		c      model.Challenge
		status string
	)
	err := row.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &status, &uc.CreatedAt, &uc.CompletedAt,
		&c.ID, &c.Title, &c.Description, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	uc.Status = model.Status(status)
	uc.Challenge = &c
	return &uc, nil
}

// Create saves a challenge for the user. A missing challenge yields ErrNotFound.
func (r *TrackingRepo) Create(ctx context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error) {
	const q = `
WITH uc AS (
  INSERT INTO user_challenges (user_id, challenge_id, status)
  VALUES ($1, $2, 'pending')
  RETURNING id, user_id, challenge_id, status, created_at, completed_at
)` + trackingSelect + `
FROM uc JOIN challenges c ON c.id = uc.challenge_id`
	uc, err := scanTracking(r.db.Pool.QueryRow(ctx, q, userID, challengeID))
	if isForeignKeyViolation(err) {
		return nil, errs.ErrNotFound
	}
	return uc, err
}

// ListByUser returns the user's saved challenges, newest first.
func (r *TrackingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.UserChallenge, error) {
	const q = trackingSelect + `
FROM user_challenges uc JOIN challenges c ON c.id = uc.challenge_id
WHERE uc.user_id=$1
ORDER BY uc.created_at DESC, uc.id DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserChallenge{}
	for rows.Next() {
		uc, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *uc)
	}
	return out, rows.Err()
}

// MarkCompleted flips status to completed; completed_at keeps its first value.
func (r *TrackingRepo) MarkCompleted(ctx context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error) {
	const q = `
WITH uc AS (
  UPDATE user_challenges
  SET status='completed', completed_at=COALESCE(completed_at, now())
  WHERE id=$1 AND user_id=$2
  RETURNING id, user_id, challenge_id, status, created_at, completed_at
)` + trackingSelect + `
FROM uc JOIN challenges c ON c.id = uc.challenge_id`
	return scanTracking(r.db.Pool.QueryRow(ctx, q, id, userID))
}

// Delete removes one of the user's rows.
func (r *TrackingRepo) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM user_challenges WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
