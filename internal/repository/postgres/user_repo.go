package postgres

import (
	"context"
	"errors"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, name, email, pwd_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PwdHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row and fills its timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, name, email, pwd_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Name, u.Email, u.PwdHash, u.Role).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, email))
}

// UpdateProfile overwrites name and password hash.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name string, pwdHash []byte) (*model.User, error) {
	const q = `
UPDATE users SET name=$2, pwd_hash=$3, updated_at=now()
WHERE id=$1
RETURNING ` + userCols
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, name, pwdHash))
}

// SetRole changes a user's role.
func (r *UserRepo) SetRole(ctx context.Context, email, role string) error {
	const q = `UPDATE users SET role=$2, updated_at=now() WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, email, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DemoteAdmins drops the admin role from accounts not listed in keep.
func (r *UserRepo) DemoteAdmins(ctx context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	const q = `UPDATE users SET role=$1, updated_at=now() WHERE role=$2 AND NOT (email = ANY($3))`
	tag, err := r.db.Pool.Exec(ctx, q, model.RoleUser, model.RoleAdmin, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByEmail removes the user, its saved challenges and its reset tokens in one transaction.
func (r *UserRepo) DeleteByEmail(ctx context.Context, email string) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE email=$1 FOR UPDATE`, email).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_challenges WHERE user_id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM password_resets WHERE user_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		return err
	})
}
