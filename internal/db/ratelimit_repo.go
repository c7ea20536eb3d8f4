package db

import (
	"context"
	"time"

	"skyguard/internal/types"
)

// RateLimitRepository keeps a sliding log of admitted attempts per key in the
// rate_limits table. It lets several API instances share one limit without
// Redis.
type RateLimitRepository struct {
	db DBTX
}

// NewRateLimitRepository creates a RateLimitRepository.
func NewRateLimitRepository(db DBTX) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// attemptSQL prunes the key's log to attempts after $3 and appends $2 when
// fewer than $4 remain. Every SET expression reads the pre-update row, so
// last_allowed and attempts agree. The upsert holds the row lock for the
// whole statement: concurrent callers on one key serialize and each sees the
// attempts committed before it.
const attemptSQL = `
INSERT INTO rate_limits AS rl (operation_key, attempts, last_allowed, updated_at)
VALUES ($1, ARRAY[$2::timestamptz], TRUE, $2)
ON CONFLICT (operation_key) DO UPDATE SET
    attempts = CASE
        WHEN cardinality(ARRAY(SELECT a FROM unnest(rl.attempts) a WHERE a > $3)) < $4
        THEN ARRAY(SELECT a FROM unnest(rl.attempts) a WHERE a > $3 ORDER BY a) || $2::timestamptz
        ELSE ARRAY(SELECT a FROM unnest(rl.attempts) a WHERE a > $3 ORDER BY a)
    END,
    last_allowed = cardinality(ARRAY(SELECT a FROM unnest(rl.attempts) a WHERE a > $3)) < $4,
    updated_at = $2
RETURNING last_allowed, cardinality(attempts), attempts[1]`

// Attempt records an attempt at now for key if fewer than limit attempts
// fall after windowStart. It reports whether the attempt was admitted, the
// number of attempts in the window afterwards, and the oldest of them.
// Rejected attempts are not logged.
func (r *RateLimitRepository) Attempt(ctx context.Context, key string, now, windowStart time.Time, limit int) (allowed bool, count int, oldest time.Time, err error) {
	err = r.db.QueryRow(ctx, attemptSQL, key, now, windowStart, limit).Scan(&allowed, &count, &oldest)
	if err != nil {
		return false, 0, time.Time{}, types.NewAppError(types.ErrCodeInternalDB, "failed to record rate limit attempt", err)
	}
	return allowed, count, oldest, nil
}

// DeleteBefore purges keys with no attempt since cutoff.
func (r *RateLimitRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limits WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge rate limit keys", err)
	}
	return tag.RowsAffected(), nil
}
