package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps limiter buckets in the auth_limiter table so lockouts are shared by
// every replica on the same database. All time arithmetic uses the database
// clock.
type PG struct {
	pool Querier
	cfg  Config
}

// Querier is the subset of a pgx pool the limiter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. Zero policy fields take defaults.
func NewPG(q Querier, cfg Config) *PG {
	return &PG{pool: q, cfg: cfg.withDefaults()}
}

const pgAllow = `
SELECT EXTRACT(EPOCH FROM blocked_until - now())::float8
FROM auth_limiter WHERE username=$1 AND ip_hash=$2`

// Allow reports whether the bucket is currently unblocked.
func (l *PG) Allow(ctx context.Context, k Key) (bool, time.Duration, error) {
	var remaining float64
	err := l.pool.QueryRow(ctx, pgAllow, k.Username, k.IPHash).Scan(&remaining)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	case remaining > 0:
		return false, seconds(remaining), nil
	default:
		return true, 0, nil
	}
}

const pgSuccess = `DELETE FROM auth_limiter WHERE username=$1 AND ip_hash=$2`

// Success drops the bucket.
func (l *PG) Success(ctx context.Context, k Key) error {
	_, err := l.pool.Exec(ctx, pgSuccess, k.Username, k.IPHash)
	return err
}

// pgFailure counts the attempt and sets the block in one statement, so two
// concurrent failures can never both miss the threshold.
const pgFailure = `
INSERT INTO auth_limiter AS a (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1,
        CASE WHEN $3::int <= 1 THEN now() + $4::interval ELSE 'epoch' END,
        now())
ON CONFLICT (username, ip_hash) DO UPDATE SET
  fail_count = CASE WHEN now() - a.updated_at > $5::interval THEN 1 ELSE a.fail_count + 1 END,
  blocked_until = CASE
    WHEN (CASE WHEN now() - a.updated_at > $5::interval THEN 1 ELSE a.fail_count + 1 END) >= $3::int
      THEN now() + $4::interval
    ELSE a.blocked_until END,
  updated_at = now()
RETURNING EXTRACT(EPOCH FROM blocked_until - now())::float8`

// Failure records a failed attempt and reports a block when the threshold is hit.
func (l *PG) Failure(ctx context.Context, k Key) (bool, time.Duration, error) {
	var remaining float64
	err := l.pool.QueryRow(ctx, pgFailure,
		k.Username, k.IPHash, l.cfg.MaxFails, l.cfg.BlockFor, l.cfg.Window,
	).Scan(&remaining)
	if err != nil {
		return false, 0, err
	}
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, seconds(remaining), nil
}

const pgPrune = `
DELETE FROM auth_limiter
WHERE blocked_until < now() AND updated_at < now() - $1::interval`

// Prune deletes idle, unblocked buckets.
func (l *PG) Prune(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, pgPrune, l.cfg.Window)
	return err
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
