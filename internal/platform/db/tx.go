package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxProfile bounds how long a transaction may wait on statements and locks.
type TxProfile struct {
	Name             string
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

// Profiles holds the interactive and bulk transaction profiles.
type Profiles struct {
	Interactive TxProfile
	Bulk        TxProfile
}

// DefaultProfiles mirrors the config defaults.
func DefaultProfiles() Profiles {
	return Profiles{
		Interactive: TxProfile{Name: "interactive", StatementTimeout: 5 * time.Second, LockTimeout: 3 * time.Second},
		Bulk:        TxProfile{Name: "bulk", StatementTimeout: 120 * time.Second, LockTimeout: 30 * time.Second},
	}
}

type bulkKey struct{}

// WithBulk marks ctx as a bulk operation so transactions use the bulk profile.
func WithBulk(ctx context.Context) context.Context {
	return context.WithValue(ctx, bulkKey{}, true)
}

// IsBulk reports whether ctx was marked with WithBulk.
func IsBulk(ctx context.Context) bool {
	bulk, _ := ctx.Value(bulkKey{}).(bool)
	return bulk
}

// Select returns the profile that applies to ctx.
func (p Profiles) Select(ctx context.Context) TxProfile {
	if IsBulk(ctx) {
		return p.Bulk
	}
	return p.Interactive
}

// Runner opens transactions against a pool using the context's profile.
type Runner struct {
	pool     *pgxpool.Pool
	profiles Profiles
}

// NewRunner constructs a Runner.
func NewRunner(pool *pgxpool.Pool, profiles Profiles) *Runner {
	return &Runner{pool: pool, profiles: profiles}
}

// Pool exposes the underlying pool for read-only queries.
func (r *Runner) Pool() *pgxpool.Pool {
	return r.pool
}

// WithTx executes fn within a read-committed transaction. Ledger correctness
// relies on SELECT ... FOR UPDATE row locks taken inside fn.
func (r *Runner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("platform/db: runner not initialised")
	}
	return WithTx(ctx, r.pool, r.profiles.Select(ctx), fn)
}

// WithTx executes a function within a transaction bounded by profile.
func WithTx(ctx context.Context, pool *pgxpool.Pool, profile TxProfile, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return TranslateError(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := applyProfile(ctx, tx, profile); err != nil {
		return TranslateError(err)
	}

	if err := fn(tx); err != nil {
		return TranslateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return TranslateError(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func applyProfile(ctx context.Context, tx pgx.Tx, profile TxProfile) error {
	// SET LOCAL does not accept bind parameters; set_config(..., true) is the
	// transaction-scoped equivalent.
	if profile.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('statement_timeout', $1, true)`, millis(profile.StatementTimeout)); err != nil {
			return fmt.Errorf("platform/db: statement timeout: %w", err)
		}
	}
	if profile.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, millis(profile.LockTimeout)); err != nil {
			return fmt.Errorf("platform/db: lock timeout: %w", err)
		}
	}
	return nil
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// busyCodes are PostgreSQL SQLSTATEs that mean "try again later".
var busyCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (statement_timeout)
}

// TranslateError maps storage failures onto the shared error taxonomy.
// Errors that already carry a domain sentinel pass through unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if shared.CodeOf(err) != shared.CodeInternal {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := busyCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %s", shared.ErrBusy, pgErr.Message)
		}
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", shared.ErrDuplicateDocument, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", shared.ErrNotFound, pgErr.ConstraintName)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return err
}
