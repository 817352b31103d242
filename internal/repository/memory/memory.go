// Package memory implements the repository interfaces in process memory.
// It backs the server's -store=memory mode and HTTP-level tests.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Store holds all tables behind one lock so cascades stay consistent.
type Store struct {
	mu sync.Mutex

	users      map[uuid.UUID]*model.User
	resets     []*model.PasswordReset
	challenges []*model.Challenge
	tracking   []*model.UserChallenge

	challengeSeq int64
	trackingSeq  int64
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{users: map[uuid.UUID]*model.User{}, now: time.Now}
}

// Users returns the store's UserRepository view.
func (s *Store) Users() *Users { return &Users{s} }

// Resets returns the store's ResetRepository view.
func (s *Store) Resets() *Resets { return &Resets{s} }

// Challenges returns the store's ChallengeRepository view.
func (s *Store) Challenges() *Challenges { return &Challenges{s} }

// Tracking returns the store's TrackingRepository view.
func (s *Store) Tracking() *Tracking { return &Tracking{s} }

var (
	_ repository.UserRepository      = (*Users)(nil)
	_ repository.ResetRepository     = (*Resets)(nil)
	_ repository.ChallengeRepository = (*Challenges)(nil)
	_ repository.TrackingRepository  = (*Tracking)(nil)
)

// Users implements repository.UserRepository.
type Users struct{ s *Store }

func (r *Users) byEmail(email string) *model.User {
	for _, u := range r.s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.byEmail(u.Email) != nil {
		return errs.ErrAlreadyExists
	}
	now := r.s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	cpy := *u
	cpy.PwdHash = append([]byte(nil), u.PwdHash...)
	r.s.users[u.ID] = &cpy
	return nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	if u == nil {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) UpdateProfile(_ context.Context, id uuid.UUID, name string, pwdHash []byte) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u.Name = name
	u.PwdHash = append([]byte(nil), pwdHash...)
	u.UpdatedAt = r.s.now()
	c := *u
	return &c, nil
}

func (r *Users) SetRole(_ context.Context, email, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	if u == nil {
		return errs.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = r.s.now()
	return nil
}

func (r *Users) DemoteAdmins(_ context.Context, keep []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	listed := make(map[string]bool, len(keep))
	for _, e := range keep {
		listed[e] = true
	}
	var n int64
	for _, u := range r.s.users {
		if u.Role == model.RoleAdmin && !listed[u.Email] {
			u.Role = model.RoleUser
			u.UpdatedAt = r.s.now()
			n++
		}
	}
	return n, nil
}

// DeleteByEmail drops the user with its saved challenges and reset tokens.
func (r *Users) DeleteByEmail(_ context.Context, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.byEmail(email)
	if u == nil {
		return errs.ErrNotFound
	}
	delete(r.s.users, u.ID)
	r.s.tracking = filter(r.s.tracking, func(uc *model.UserChallenge) bool { return uc.UserID != u.ID })
	r.s.resets = filter(r.s.resets, func(pr *model.PasswordReset) bool { return pr.UserID != u.ID })
	return nil
}

// Resets implements repository.ResetRepository.
type Resets struct{ s *Store }

func (r *Resets) Create(_ context.Context, pr *model.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[pr.UserID]; !ok {
		return errs.ErrNotFound
	}
	cpy := *pr
	cpy.CreatedAt = r.s.now()
	r.s.resets = append(r.s.resets, &cpy)
	return nil
}

func (r *Resets) Consume(_ context.Context, digest []byte, now time.Time, pwdHash []byte) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, pr := range r.s.resets {
		if !bytes.Equal(pr.TokenHash, digest) || pr.UsedAt != nil || !pr.ExpiresAt.After(now) {
			continue
		}
		u, ok := r.s.users[pr.UserID]
		if !ok {
			return uuid.Nil, errs.ErrNotFound
		}
		u.PwdHash = append([]byte(nil), pwdHash...)
		u.UpdatedAt = now
		for _, o := range r.s.resets {
			if o.UserID == pr.UserID && o.UsedAt == nil {
				t := now
				o.UsedAt = &t
			}
		}
		return u.ID, nil
	}
	return uuid.Nil, errs.ErrNotFound
}

// Challenges implements repository.ChallengeRepository.
type Challenges struct{ s *Store }

func (r *Challenges) List(context.Context) ([]model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Challenge, 0, len(r.s.challenges))
	for _, c := range r.s.challenges {
		out = append(out, *c)
	}
	return out, nil
}

func (r *Challenges) Count(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.challenges)), nil
}

func (r *Challenges) GetAtOffset(_ context.Context, offset int64) (*model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if offset < 0 || offset >= int64(len(r.s.challenges)) {
		return nil, errs.ErrNotFound
	}
	c := *r.s.challenges[offset]
	return &c, nil
}

func (r *Challenges) insert(in model.ChallengeInput) model.Challenge {
	r.s.challengeSeq++
	c := &model.Challenge{ID: r.s.challengeSeq, Title: in.Title, Description: in.Description, CreatedAt: r.s.now()}
	r.s.challenges = append(r.s.challenges, c)
	return *c
}

func (r *Challenges) Create(_ context.Context, in model.ChallengeInput) (*model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.insert(in)
	return &c, nil
}

func (r *Challenges) CreateBatch(_ context.Context, in []model.ChallengeInput) ([]model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Challenge, 0, len(in))
	for _, c := range in {
		out = append(out, r.insert(c))
	}
	return out, nil
}

func (r *Challenges) find(id int64) *model.Challenge {
	for _, c := range r.s.challenges {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *Challenges) Update(_ context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.find(id)
	if c == nil {
		return nil, errs.ErrNotFound
	}
	c.Title, c.Description = in.Title, in.Description
	cpy := *c
	return &cpy, nil
}

// Delete drops the challenge and every saved copy of it.
func (r *Challenges) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.find(id) == nil {
		return errs.ErrNotFound
	}
	r.s.challenges = filter(r.s.challenges, func(c *model.Challenge) bool { return c.ID != id })
	r.s.tracking = filter(r.s.tracking, func(uc *model.UserChallenge) bool { return uc.ChallengeID != id })
	return nil
}

// Tracking implements repository.TrackingRepository.
type Tracking struct{ s *Store }

func (r *Tracking) withChallenge(uc *model.UserChallenge) model.UserChallenge {
	out := *uc
	for _, c := range r.s.challenges {
		if c.ID == uc.ChallengeID {
			cpy := *c
			out.Challenge = &cpy
		}
	}
	return out
}

func (r *Tracking) Create(_ context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return nil, errs.ErrNotFound
	}
	if (&Challenges{r.s}).find(challengeID) == nil {
		return nil, errs.ErrNotFound
	}
	r.s.trackingSeq++
	uc := &model.UserChallenge{
		ID:          r.s.trackingSeq,
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      model.StatusPending,
		CreatedAt:   r.s.now(),
	}
	r.s.tracking = append(r.s.tracking, uc)
	out := r.withChallenge(uc)
	return &out, nil
}

func (r *Tracking) ListByUser(_ context.Context, userID uuid.UUID) ([]model.UserChallenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []model.UserChallenge{}
	for _, uc := range r.s.tracking {
		if uc.UserID == userID {
			out = append(out, r.withChallenge(uc))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *Tracking) find(userID uuid.UUID, id int64) *model.UserChallenge {
	for _, uc := range r.s.tracking {
		if uc.ID == id && uc.UserID == userID {
			return uc
		}
	}
	return nil
}

func (r *Tracking) MarkCompleted(_ context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	uc := r.find(userID, id)
	if uc == nil {
		return nil, errs.ErrNotFound
	}
	uc.Status = model.StatusCompleted
	if uc.CompletedAt == nil {
		t := r.s.now()
		uc.CompletedAt = &t
	}
	out := r.withChallenge(uc)
	return &out, nil
}

func (r *Tracking) Delete(_ context.Context, userID uuid.UUID, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.find(userID, id) == nil {
		return errs.ErrNotFound
	}
	r.s.tracking = filter(r.s.tracking, func(uc *model.UserChallenge) bool { return uc.ID != id })
	return nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
