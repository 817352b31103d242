package repository

import (
	"context"

	"github.com/and161185/devdice/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ChallengeRepository provides access to the challenge catalog.
type ChallengeRepository interface {
	// List returns every challenge ordered by id.
	List(ctx context.Context) ([]model.Challenge, error)
	// Count returns the number of challenges.
	Count(ctx context.Context) (int64, error)
	// GetAtOffset returns the challenge at the zero-based position in id order.
	GetAtOffset(ctx context.Context, offset int64) (*model.Challenge, error)
	// Create inserts one challenge.
	Create(ctx context.Context, in model.ChallengeInput) (*model.Challenge, error)
	// CreateBatch inserts all rows in one transaction.
	CreateBatch(ctx context.Context, in []model.ChallengeInput) ([]model.Challenge, error)
	// Update overwrites title and description.
	Update(ctx context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error)
	// Delete removes the challenge together with tracking rows that reference it.
	Delete(ctx context.Context, id int64) error
}

// TrackingRepository stores challenges saved by users. Every method is scoped to userID.
type TrackingRepository interface {
	// Create saves a challenge to the user's list with status pending.
	Create(ctx context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error)
	// ListByUser returns the user's rows with embedded challenge, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.UserChallenge, error)
	// MarkCompleted sets status completed, keeping the first completion time.
	MarkCompleted(ctx context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error)
	// Delete removes one row.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}
