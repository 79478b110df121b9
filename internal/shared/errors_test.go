package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err       error
		code      Code
		retryable bool
	}{
		{fmt.Errorf("%w: qty", ErrValidation), CodeValidation, false},
		{ErrIdempotencyConflict, CodeDuplicateDocument, false},
		{fmt.Errorf("%w: no poster", ErrMisconfigured), CodeMisconfigured, false},
		{fmt.Errorf("wrap: %w", ErrBusy), CodeBusy, true},
		{context.DeadlineExceeded, CodeBusy, true},
		{errors.New("boom"), CodeInternal, true},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.code {
			t.Fatalf("CodeOf(%v) = %s, want %s", tc.err, got, tc.code)
		}
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
	if CodeOf(nil) != "" {
		t.Fatal("nil error must have no code")
	}
	if MetadataFor(CodeMisconfigured).HTTPStatus != http.StatusInternalServerError {
		t.Fatal("misconfiguration must surface as 500")
	}
}

type execFunc func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

func (f execFunc) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f(ctx, sql, args...)
}

func TestClaimIdempotencyKey(t *testing.T) {
	var claimed []any
	exec := execFunc(func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
		if len(claimed) > 0 && claimed[0] == args[0] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: uniqueViolation}
		}
		claimed = args
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := ClaimIdempotencyKey(context.Background(), exec, " erp:A-1 ", "erp.movement", at); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed[0] != "erp:A-1" || claimed[2] != at {
		t.Fatalf("unexpected insert args %v", claimed)
	}
	err := ClaimIdempotencyKey(context.Background(), exec, "erp:A-1", "erp.movement", at)
	if !errors.Is(err, ErrIdempotencyConflict) || !errors.Is(err, ErrDuplicateDocument) {
		t.Fatalf("second claim: want conflict, got %v", err)
	}
	if err := ClaimIdempotencyKey(context.Background(), exec, "  ", "erp.movement", at); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank key: want validation, got %v", err)
	}
}
