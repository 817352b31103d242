// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/devdice/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for user accounts.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by (lowercase) email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateProfile overwrites name and password hash.
	UpdateProfile(ctx context.Context, id uuid.UUID, name string, pwdHash []byte) (*model.User, error)
	// SetRole changes the role of the account with the given email.
	SetRole(ctx context.Context, email, role string) error
	// DemoteAdmins resets every admin whose email is not in keep to the
	// user role and returns how many accounts changed.
	DemoteAdmins(ctx context.Context, keep []string) (int64, error)
	// DeleteByEmail removes the user and every row that belongs to it.
	DeleteByEmail(ctx context.Context, email string) error
}

// ResetRepository stores single-use password reset tokens.
type ResetRepository interface {
	// Create stores a reset token digest.
	Create(ctx context.Context, r *model.PasswordReset) error
	// Consume atomically redeems an unexpired, unused token, sets the user's
	// password hash and revokes the user's other outstanding tokens.
	Consume(ctx context.Context, digest []byte, now time.Time, pwdHash []byte) (uuid.UUID, error)
}
