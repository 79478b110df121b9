package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict reports a key that was already claimed. It wraps
// ErrDuplicateDocument so callers surface it as DUPLICATE_DOCUMENT.
var ErrIdempotencyConflict = fmt.Errorf("%w: idempotent request already processed", ErrDuplicateDocument)

const uniqueViolation = "23505"

// Execer runs a statement on a pool or an open transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// ClaimIdempotencyKey records key for module through exec, failing with
// ErrIdempotencyConflict when it was claimed before. Run inside the
// transaction of the work it guards so a rollback releases the claim.
func ClaimIdempotencyKey(ctx context.Context, exec Execer, key, module string, at time.Time) error {
	key, module = strings.TrimSpace(key), strings.TrimSpace(module)
	if key == "" || module == "" {
		return fmt.Errorf("%w: idempotency key and module required", ErrValidation)
	}
	_, err := exec.Exec(ctx,
		`INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`,
		key, module, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrIdempotencyConflict, key)
		}
		return err
	}
	return nil
}

// IdempotencyStore prunes claimed keys once their retention window passes.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Cleanup removes keys claimed before the retention window and reports how
// many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
