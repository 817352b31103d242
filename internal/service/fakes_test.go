package service

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/limiter"
	"github.com/and161185/devdice/internal/mailer"
	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
	deleteErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	cpy.CreatedAt, cpy.UpdatedAt = time.Now(), time.Now()
	f.byEmail[u.Email] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, name string, pwdHash []byte) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			u.Name = name
			u.PwdHash = append([]byte(nil), pwdHash...)
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) SetRole(_ context.Context, email, role string) error {
	u, ok := f.byEmail[email]
	if !ok {
		return errs.ErrNotFound
	}
	u.Role = role
	return nil
}
func (f *fakeUsers) DemoteAdmins(_ context.Context, keep []string) (int64, error) {
	var n int64
	for email, u := range f.byEmail {
		if u.Role != model.RoleAdmin {
			continue
		}
		listed := false
		for _, k := range keep {
			listed = listed || k == email
		}
		if !listed {
			u.Role = model.RoleUser
			n++
		}
	}
	return n, nil
}
func (f *fakeUsers) DeleteByEmail(_ context.Context, email string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byEmail[email]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byEmail, email)
	return nil
}

type fakeResets struct {
	users *fakeUsers
	rows  []*model.PasswordReset
}

var _ repository.ResetRepository = (*fakeResets)(nil)

func (f *fakeResets) Create(_ context.Context, r *model.PasswordReset) error {
	cpy := *r
	f.rows = append(f.rows, &cpy)
	return nil
}
func (f *fakeResets) Consume(ctx context.Context, digest []byte, now time.Time, pwdHash []byte) (uuid.UUID, error) {
	for _, r := range f.rows {
		if bytes.Equal(r.TokenHash, digest) && r.UsedAt == nil && r.ExpiresAt.After(now) {
			if _, err := f.users.UpdateProfile(ctx, r.UserID, f.nameOf(r.UserID), pwdHash); err != nil {
				return uuid.Nil, err
			}
			for _, o := range f.rows {
				if o.UserID == r.UserID && o.UsedAt == nil {
					t := now
					o.UsedAt = &t
				}
			}
			return r.UserID, nil
		}
	}
	return uuid.Nil, errs.ErrNotFound
}
func (f *fakeResets) nameOf(id uuid.UUID) string {
	u, _ := f.users.GetByID(context.Background(), id)
	if u == nil {
		return ""
	}
	return u.Name
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type sentMail struct{ to, link string }

type fakeMailer struct {
	sent []sentMail
	err  error
}

var _ mailer.Mailer = (*fakeMailer)(nil)

func (m *fakeMailer) SendReset(_ context.Context, to, link string) error {
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return m.err
}

type fakeChallenges struct {
	rows   []model.Challenge
	nextID int64

	batchErr  error
	batchCall int
	// vanish makes the next n GetAtOffset calls report a missing row.
	vanish int
}

var _ repository.ChallengeRepository = (*fakeChallenges)(nil)

func (f *fakeChallenges) List(context.Context) ([]model.Challenge, error) {
	out := append([]model.Challenge{}, f.rows...)
	return out, nil
}
func (f *fakeChallenges) Count(context.Context) (int64, error) { return int64(len(f.rows)), nil }
func (f *fakeChallenges) GetAtOffset(_ context.Context, off int64) (*model.Challenge, error) {
	if f.vanish > 0 {
		f.vanish--
		return nil, errs.ErrNotFound
	}
	if off < 0 || off >= int64(len(f.rows)) {
		return nil, errs.ErrNotFound
	}
	c := f.rows[off]
	return &c, nil
}
func (f *fakeChallenges) insert(in model.ChallengeInput) model.Challenge {
	f.nextID++
	c := model.Challenge{ID: f.nextID, Title: in.Title, Description: in.Description, CreatedAt: time.Now()}
	f.rows = append(f.rows, c)
	return c
}
func (f *fakeChallenges) Create(_ context.Context, in model.ChallengeInput) (*model.Challenge, error) {
	c := f.insert(in)
	return &c, nil
}
func (f *fakeChallenges) CreateBatch(_ context.Context, in []model.ChallengeInput) ([]model.Challenge, error) {
	f.batchCall++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]model.Challenge, 0, len(in))
	for _, c := range in {
		out = append(out, f.insert(c))
	}
	return out, nil
}
func (f *fakeChallenges) Update(_ context.Context, id int64, in model.ChallengeInput) (*model.Challenge, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Title, f.rows[i].Description = in.Title, in.Description
			c := f.rows[i]
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeChallenges) Delete(_ context.Context, id int64) error {
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

type fakeTracking struct {
	catalog *fakeChallenges
	rows    []*model.UserChallenge
	nextID  int64
}

var _ repository.TrackingRepository = (*fakeTracking)(nil)

func (f *fakeTracking) Create(_ context.Context, userID uuid.UUID, challengeID int64) (*model.UserChallenge, error) {
	var ch *model.Challenge
	for i := range f.catalog.rows {
		if f.catalog.rows[i].ID == challengeID {
			c := f.catalog.rows[i]
			ch = &c
		}
	}
	if ch == nil {
		return nil, errs.ErrNotFound
	}
	f.nextID++
	uc := &model.UserChallenge{
		ID: f.nextID, UserID: userID, ChallengeID: challengeID,
		Status: model.StatusPending, CreatedAt: time.Now().Add(time.Duration(f.nextID) * time.Millisecond),
		Challenge: ch,
	}
	f.rows = append(f.rows, uc)
	c := *uc
	return &c, nil
}
func (f *fakeTracking) ListByUser(_ context.Context, userID uuid.UUID) ([]model.UserChallenge, error) {
	out := []model.UserChallenge{}
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
func (f *fakeTracking) find(userID uuid.UUID, id int64) *model.UserChallenge {
	for _, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			return r
		}
	}
	return nil
}
func (f *fakeTracking) MarkCompleted(_ context.Context, userID uuid.UUID, id int64) (*model.UserChallenge, error) {
	r := f.find(userID, id)
	if r == nil {
		return nil, errs.ErrNotFound
	}
	r.Status = model.StatusCompleted
	if r.CompletedAt == nil {
		t := time.Now()
		r.CompletedAt = &t
	}
	c := *r
	return &c, nil
}
func (f *fakeTracking) Delete(_ context.Context, userID uuid.UUID, id int64) error {
	for i, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}
