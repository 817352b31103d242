// Package service contains application services for accounts, the challenge
// catalog and per-user challenge tracking.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/devdice/internal/crypto"
	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/limiter"
	"github.com/and161185/devdice/internal/mailer"
	"github.com/and161185/devdice/internal/model"
	"github.com/and161185/devdice/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Client-facing messages. Credential failures are deliberately vague.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgSignupRejected     = "Unable to register with these details"
	msgBadResetToken      = "Invalid or expired reset token"
)

// ResetRequestedMessage is the reply to every forgot-password request.
const ResetRequestedMessage = "If an account with that email exists, you will receive a password reset link."

const tokenLeeway = 30 * time.Second

// AuthService defines account and token operations.
type AuthService interface {
	// SignUp creates an account and returns a session for it.
	SignUp(ctx context.Context, name, email, password string) (model.Session, error)
	// Login authenticates with lockout by (email, ip).
	Login(ctx context.Context, email, password, ip string) (model.Session, error)
	// VerifyToken validates a bearer token and returns its claims.
	VerifyToken(token string) (model.Claims, error)
	// Me returns the account behind verified claims.
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	// UpdateProfile changes name and/or password after checking the current password.
	UpdateProfile(ctx context.Context, caller model.Claims, email string, upd model.ProfileUpdate) (*model.User, error)
	// RequestPasswordReset mails a single-use reset link if the account exists.
	RequestPasswordReset(ctx context.Context, email string) error
	// ResetPassword redeems a reset token and sets a new password.
	ResetPassword(ctx context.Context, token, newPassword string) error
	// DeleteAccount removes the caller's account and everything it owns.
	DeleteAccount(ctx context.Context, caller model.Claims, email string) error
	// EnsureAdmins makes the admin role match the configured admin emails.
	EnsureAdmins(ctx context.Context) error
}

// AuthConfig carries the tunables of AuthServiceImpl.
type AuthConfig struct {
	SignKey     []byte
	TokenTTL    time.Duration
	BcryptCost  int
	AdminEmails []string
	ResetTTL    time.Duration
	ResetURL    string
}

type AuthServiceImpl struct {
	users  repository.UserRepository
	resets repository.ResetRepository
	lim    limiter.Limiter
	mail   mailer.Mailer
	log    *zap.Logger
	cfg    AuthConfig
	admins map[string]struct{}
	dummy  []byte
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, resets repository.ResetRepository, lim limiter.Limiter,
	m mailer.Mailer, log *zap.Logger, cfg AuthConfig) *AuthServiceImpl {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	dummy, err := pkgcrypto.DummyHash(cfg.BcryptCost)
	if err != nil {
		log.Error("dummy hash", zap.Error(err))
	}
	return &AuthServiceImpl{
		users: users, resets: resets, lim: lim, mail: m, log: log,
		cfg: cfg, admins: admins, dummy: dummy, now: time.Now,
	}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func validEmail(e string) bool {
	a, err := mail.ParseAddress(e)
	return err == nil && a.Address == e && strings.Contains(e[strings.LastIndex(e, "@")+1:], ".")
}

// ValidatePassword enforces the password policy: 8 characters up to bcrypt's
// 72-byte input limit, with an upper-case letter, a lower-case letter, a digit
// and one of !@#$%^&*.
func ValidatePassword(pw string) error {
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("!@#$%^&*", r):
			special = true
		}
	}
	switch {
	case len(pw) < 8:
		return errs.New(errs.ErrValidation, "Password must be at least 8 characters")
	case len(pw) > pkgcrypto.MaxPasswordBytes:
		return errs.New(errs.ErrValidation, "Password must be at most 72 bytes")
	case !upper || !lower:
		return errs.New(errs.ErrValidation, "Password must contain upper and lower case letters")
	case !digit:
		return errs.New(errs.ErrValidation, "Password must contain a digit")
	case !special:
		return errs.New(errs.ErrValidation, "Password must contain one of !@#$%^&*")
	}
	return nil
}

func (s *AuthServiceImpl) roleFor(email string) string {
	if _, ok := s.admins[email]; ok {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// SignUp validates input, stores a bcrypt hash and issues a token.
func (s *AuthServiceImpl) SignUp(ctx context.Context, name, email, password string) (model.Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return model.Session{}, errs.New(errs.ErrValidation, "Name, email and password are required")
	}
	if !validEmail(email) {
		return model.Session{}, errs.New(errs.ErrValidation, "Invalid email address")
	}
	if err := ValidatePassword(password); err != nil {
		return model.Session{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Session{}, err
	}
	hash, err := pkgcrypto.HashPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return model.Session{}, err
	}
	u := &model.User{
		ID:      uid,
		Name:    name,
		Email:   email,
		PwdHash: hash,
		Role:    s.roleFor(email),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return model.Session{}, errs.New(errs.ErrAlreadyExists, msgSignupRejected)
		}
		return model.Session{}, err
	}
	return s.session(*u)
}

// Login authenticates with rate limiting by (email, ip). Unknown email and
// wrong password take the same path and return the same error.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return model.Session{}, errs.New(errs.ErrValidation, "Email and password are required")
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Session{}, err
	}
	if !allowed {
		return model.Session{}, errs.New(errs.ErrRateLimited, "Too many failed attempts, try again later")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Session{}, err
	}
	hash := s.dummy
	if u != nil {
		hash = u.PwdHash
	}
	ok := pkgcrypto.VerifyPassword([]byte(password), hash) && u != nil
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Session{}, errs.New(errs.ErrRateLimited, "Too many failed attempts, try again later")
		}
		return model.Session{}, errs.New(errs.ErrUnauthorized, msgInvalidCredentials)
	}

	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	return s.session(*u)
}

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthServiceImpl) session(u model.User) (model.Session, error) {
	now := s.now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := tokenClaims{
		Email: u.Email,
		Role:  u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SignKey)
	if err != nil {
		return model.Session{}, err
	}
	return model.Session{Token: signed, ExpiresAt: exp, User: u}, nil
}

// VerifyToken accepts only HS256 tokens signed with our key that carry a UUID subject.
func (s *AuthServiceImpl) VerifyToken(token string) (model.Claims, error) {
	if token == "" {
		return model.Claims{}, errs.New(errs.ErrUnauthorized, "Missing token")
	}
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) { return s.cfg.SignKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Claims{}, errs.New(errs.ErrUnauthorized, "Invalid token")
	}
	uid, err := uuid.FromString(tc.Subject)
	if err != nil || uid == uuid.Nil {
		return model.Claims{}, errs.New(errs.ErrUnauthorized, "Invalid token")
	}
	return model.Claims{
		UserID:    uid,
		Email:     tc.Email,
		Role:      tc.Role,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// Me loads the caller's account.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

func ownEmail(caller model.Claims, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errs.New(errs.ErrValidation, "Email is required")
	}
	if caller.Email != email {
		return "", errs.New(errs.ErrForbidden, "You can only change your own account")
	}
	return email, nil
}

// UpdateProfile verifies the current password before applying any change.
// Nil fields keep their stored values.
func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, caller model.Claims, email string, upd model.ProfileUpdate) (*model.User, error) {
	email, err := ownEmail(caller, email)
	if err != nil {
		return nil, err
	}
	if upd.CurrentPassword == "" {
		return nil, errs.New(errs.ErrValidation, "Current password is required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !pkgcrypto.VerifyPassword([]byte(upd.CurrentPassword), u.PwdHash) {
		return nil, errs.New(errs.ErrUnauthorized, "Current password is incorrect")
	}

	name, hash := u.Name, u.PwdHash
	if upd.Name != nil {
		if name = strings.TrimSpace(*upd.Name); name == "" {
			return nil, errs.New(errs.ErrValidation, "Name cannot be empty")
		}
	}
	if upd.NewPassword != nil {
		if err := ValidatePassword(*upd.NewPassword); err != nil {
			return nil, err
		}
		if hash, err = pkgcrypto.HashPassword([]byte(*upd.NewPassword), s.cfg.BcryptCost); err != nil {
			return nil, err
		}
	}
	return s.users.UpdateProfile(ctx, u.ID, name, hash)
}

// RequestPasswordReset never reveals whether the address is registered.
// Only storage failures surface as errors.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return errs.New(errs.ErrValidation, "Email is required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, digest, err := pkgcrypto.NewResetToken()
	if err != nil {
		return err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	pr := &model.PasswordReset{
		ID:        id,
		UserID:    u.ID,
		TokenHash: digest,
		ExpiresAt: s.now().Add(s.cfg.ResetTTL),
	}
	if err := s.resets.Create(ctx, pr); err != nil {
		return err
	}
	link, err := resetLink(s.cfg.ResetURL, token)
	if err != nil {
		return err
	}
	if err := s.mail.SendReset(ctx, u.Email, link); err != nil {
		// The token is stored; the user can ask again.
		s.log.Error("send reset mail", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	return nil
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResetPassword redeems a token. The token and every other outstanding token
// of the same user stop working.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return errs.New(errs.ErrValidation, "Reset token is required")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := pkgcrypto.HashPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if _, err := s.resets.Consume(ctx, pkgcrypto.TokenDigest(token), s.now(), hash); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.New(errs.ErrUnauthorized, msgBadResetToken)
		}
		return err
	}
	return nil
}

// DeleteAccount removes the caller's own account.
func (s *AuthServiceImpl) DeleteAccount(ctx context.Context, caller model.Claims, email string) error {
	email, err := ownEmail(caller, email)
	if err != nil {
		return err
	}
	return s.users.DeleteByEmail(ctx, email)
}

// EnsureAdmins grants the admin role to configured emails and takes it away
// from admins no longer listed. Addresses without an account are skipped;
// they get the role on signup.
func (s *AuthServiceImpl) EnsureAdmins(ctx context.Context) error {
	keep := make([]string, 0, len(s.admins))
	for email := range s.admins {
		keep = append(keep, email)
		err := s.users.SetRole(ctx, email, model.RoleAdmin)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("promote %s: %w", email, err)
		}
	}
	n, err := s.users.DemoteAdmins(ctx, keep)
	if err != nil {
		return fmt.Errorf("demote admins: %w", err)
	}
	if n > 0 {
		s.log.Info("admins demoted", zap.Int64("count", n))
	}
	return nil
}
