package service

import (
	"context"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// TrackingService manages the caller's saved challenges. Rows of other users are invisible.
type TrackingService interface {
	// Save adds a challenge to the user's list as pending.
	Save(ctx context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error)
	// List returns the user's saved challenges, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]model.UserChallenge, error)
	// MarkComplete marks a saved challenge completed. Repeating it is a no-op.
	MarkComplete(ctx context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error)
	// Delete removes a saved challenge.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

type TrackingServiceImpl struct {
	repo repository.TrackingRepository
}

// NewTrackingService constructs TrackingService.
func NewTrackingService(repo repository.TrackingRepository) *TrackingServiceImpl {
	return &TrackingServiceImpl{repo: repo}
}

func checkIDs(userID uuid.UUID, id int64) error {
	if userID == uuid.Nil {
		return errs.New(errs.ErrUnauthorized, "Missing user")
	}
	if id <= 0 {
		return errs.New(errs.ErrValidation, "Invalid id")
	}
	return nil
}

func (s *TrackingServiceImpl) Save(ctx context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error) {
	if err := checkIDs(userID, challengeID); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, userID, challengeID)
}

func (s *TrackingServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.UserChallenge, error) {
	if userID == uuid.Nil {
		return nil, errs.New(errs.ErrUnauthorized, "Missing user")
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *TrackingServiceImpl) MarkComplete(ctx context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error) {
	if err := checkIDs(userID, id); err != nil {
		return nil, err
	}
	return s.repo.MarkCompleted(ctx, userID, id)
}

func (s *TrackingServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	if err := checkIDs(userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID, id)
}
