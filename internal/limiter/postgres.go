package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps lockout state in the auth_limiter table. Timestamps come from the
// limiter's clock, not the database, so windows and blocks follow one time source.
type PG struct {
	pool     Querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// Querier is the subset of *pgxpool.Pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashIP returns a stable hash for a client address to avoid storing it raw.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether (email, ip) is outside any block, and otherwise how
// long the block still lasts.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, `SELECT blocked_until FROM auth_limiter WHERE email=$1 AND ip_hash=$2`,
		email, ipHash).Scan(&blockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success forgets earlier failures for (email, ip).
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	const q = `
INSERT INTO auth_limiter (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 0, 'epoch', $3)
ON CONFLICT (email, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`
	_, err := l.pool.Exec(ctx, q, email, ipHash, l.now())
	return err
}

// failureUpsert counts a failure and, once the count reaches the threshold,
// sets the block in the same statement. A gap longer than the window since
// the previous failure starts the count over.
const failureUpsert = `
INSERT INTO auth_limiter AS l (email, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1,
        CASE WHEN $4 <= 1 THEN $3::timestamptz + $6::interval ELSE 'epoch' END,
        $3)
ON CONFLICT (email, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN $3::timestamptz - l.updated_at > $5::interval THEN 1 ELSE l.fail_count + 1 END,
  blocked_until = CASE
    WHEN (CASE WHEN $3::timestamptz - l.updated_at > $5::interval THEN 1 ELSE l.fail_count + 1 END) >= $4
    THEN $3::timestamptz + $6::interval
    ELSE l.blocked_until END,
  updated_at = $3
RETURNING fail_count, blocked_until`

// Failure records a failed attempt and reports whether (email, ip) is now blocked.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	var (
		fails        int
		blockedUntil time.Time
	)
	err := l.pool.QueryRow(ctx, failureUpsert, email, ipHash, now, l.maxFails, l.window, l.blockFor).
		Scan(&fails, &blockedUntil)
	if err != nil {
		return false, 0, err
	}
	if left := blockedUntil.Sub(now); left > 0 {
		return true, left, nil
	}
	return false, 0, nil
}
