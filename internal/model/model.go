// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Roles carried in the users table and in the token role claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Status is the completion state of a saved challenge.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// User is an account. The password is only ever held as a bcrypt hash.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string // lowercase, unique
	PwdHash   []byte
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user may mutate the challenge catalog.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// PublicUser is the subset of User safe to return to clients.
type PublicUser struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// Public strips credential fields.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Session is the result of a successful signup or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Claims are the verified contents of a bearer token.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	ExpiresAt time.Time
}

// IsAdmin reports whether the token carries the admin role.
func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	CurrentPassword string
	Name            *string
	NewPassword     *string
}

// Challenge is one catalog entry.
type Challenge struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChallengeInput is a challenge before insertion.
type ChallengeInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// BulkResult reports what a bulk insert actually did.
type BulkResult struct {
	Count      int         `json:"count"`
	Skipped    int         `json:"skipped"`
	Challenges []Challenge `json:"challenges"`
}

// UserChallenge tracks a challenge saved to a user's list.
type UserChallenge struct {
	ID          int64      `json:"id"`
	UserID      uuid.UUID  `json:"userId"`
	ChallengeID int64      `json:"challengeId"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Challenge   *Challenge `json:"challenge,omitempty"`
}

// PasswordReset is a stored single-use reset token; only its digest is persisted.
type PasswordReset struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash []byte
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
