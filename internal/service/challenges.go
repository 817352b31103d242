package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/and161185/devdice/internal/csvimport"
	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/repository"
)

// MaxTitleLen bounds challenge titles, in characters.
const MaxTitleLen = 200

const randomAttempts = 3

// CatalogService defines operations over the challenge catalog.
type CatalogService interface {
	// List returns every challenge ordered by id.
	List(ctx context.Context) ([]model.Challenge, error)
	// GetRandom returns a uniformly chosen challenge.
	GetRandom(ctx context.Context) (*model.Challenge, error)
	// Create validates and inserts one challenge.
	Create(ctx context.Context, in model.ChallengeInput) (*model.Challenge, error)
	// BulkCreate inserts the valid rows of a batch and reports the skipped ones.
	BulkCreate(ctx context.Context, in []model.ChallengeInput) (model.BulkResult, error)
	// ImportCSV parses a CSV upload and feeds it to BulkCreate.
	ImportCSV(ctx context.Context, r io.Reader) (model.BulkResult, error)
	// Update overwrites title and description.
	Update(ctx context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error)
	// Delete removes a challenge and every saved copy of it.
	Delete(ctx context.Context, id int64) error
	// Seed fills an empty catalog with starter challenges.
	Seed(ctx context.Context) (int, error)
}

type CatalogServiceImpl struct {
	repo     repository.ChallengeRepository
	maxBatch int
	// int64n returns a uniform value in [0, n).
	int64n func(n int64) int64
}

// NewCatalogService constructs CatalogService with a batch limit.
func NewCatalogService(repo repository.ChallengeRepository, maxBatch int) *CatalogServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &CatalogServiceImpl{repo: repo, maxBatch: maxBatch, int64n: rand.Int64N}
}

func (s *CatalogServiceImpl) List(ctx context.Context) ([]model.Challenge, error) {
	return s.repo.List(ctx)
}

// GetRandom draws an offset uniformly over the current row count. A row that
// disappears between count and fetch triggers a redraw.
func (s *CatalogServiceImpl) GetRandom(ctx context.Context) (*model.Challenge, error) {
	for range randomAttempts {
		n, err := s.repo.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errs.New(errs.ErrNotFound, "No challenges available")
		}
		c, err := s.repo.GetAtOffset(ctx, s.int64n(n))
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		return c, err
	}
	return nil, errs.New(errs.ErrNotFound, "No challenges available")
}

func clean(in model.ChallengeInput) model.ChallengeInput {
	return model.ChallengeInput{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
	}
}

func checkChallenge(in model.ChallengeInput) error {
	if in.Title == "" || in.Description == "" {
		return errs.New(errs.ErrValidation, "Title and description are required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLen {
		return errs.New(errs.ErrValidation, fmt.Sprintf("Title must be at most %d characters", MaxTitleLen))
	}
	return nil
}

func (s *CatalogServiceImpl) Create(ctx context.Context, in model.ChallengeInput) (*model.Challenge, error) {
	in = clean(in)
	if err := checkChallenge(in); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, in)
}

// BulkCreate keeps partial acceptance: invalid rows are skipped and counted,
// the valid remainder is inserted in one transaction.
func (s *CatalogServiceImpl) BulkCreate(ctx context.Context, in []model.ChallengeInput) (model.BulkResult, error) {
	if len(in) == 0 {
		return model.BulkResult{}, errs.New(errs.ErrValidation, "No challenges provided")
	}
	if len(in) > s.maxBatch {
		return model.BulkResult{}, errs.New(errs.ErrValidation,
			fmt.Sprintf("Too many challenges in one batch (%d > %d)", len(in), s.maxBatch))
	}

	valid := make([]model.ChallengeInput, 0, len(in))
	for _, c := range in {
		c = clean(c)
		if checkChallenge(c) != nil {
			continue
		}
		valid = append(valid, c)
	}
	res := model.BulkResult{Skipped: len(in) - len(valid), Challenges: []model.Challenge{}}
	if len(valid) == 0 {
		return res, nil
	}
	created, err := s.repo.CreateBatch(ctx, valid)
	if err != nil {
		return model.BulkResult{}, err
	}
	res.Challenges = created
	res.Count = len(created)
	return res, nil
}

func (s *CatalogServiceImpl) ImportCSV(ctx context.Context, r io.Reader) (model.BulkResult, error) {
	rows, err := csvimport.ParseChallenges(r)
	if err != nil {
		return model.BulkResult{}, err
	}
	return s.BulkCreate(ctx, rows)
}

func (s *CatalogServiceImpl) Update(ctx context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error) {
	if id <= 0 {
		return nil, errs.New(errs.ErrValidation, "Invalid challenge id")
	}
	in = clean(in)
	if err := checkChallenge(in); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, in)
}

func (s *CatalogServiceImpl) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return errs.New(errs.ErrValidation, "Invalid challenge id")
	}
	return s.repo.Delete(ctx, id)
}

// StarterChallenges is what Seed inserts.
var StarterChallenges = []model.ChallengeInput{
	{Title: "Build a responsive navbar", Description: "Create a responsive navigation bar using HTML, CSS, and React."},
	{Title: "Create a REST API with Express", Description: "Set up a simple REST API with CRUD endpoints for users."},
	{Title: "Use TanStack Query for data fetching", Description: "Fetch and cache data from an API using TanStack Query in React."},
	{Title: "Style a card with Tailwind CSS", Description: "Use Tailwind classes to style a profile or product card."},
	{Title: "Build a login form", Description: "Create a login form using React and TypeScript with basic validation."},
}

// Seed inserts StarterChallenges when the catalog is empty and returns how many were added.
func (s *CatalogServiceImpl) Seed(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	created, err := s.repo.CreateBatch(ctx, StarterChallenges)
	if err != nil {
		return 0, err
	}
	return len(created), nil
}
