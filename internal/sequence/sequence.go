// Package sequence issues human-readable document numbers from per-type
// counters. Numbers are drawn inside the caller's transaction so a rolled
// back document never consumes one.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Sequence mirrors one doc_sequences row.
type Sequence struct {
	DocType   shared.DocType
	Prefix    string
	CurrentNo int64
	PadLength int
}

// Store increments counters atomically. Implementations must never read then
// write without holding the row lock.
type Store interface {
	// Increment bumps the counter for docType and returns the updated row.
	// It returns shared.ErrNotFound when the type has no row.
	Increment(ctx context.Context, docType shared.DocType) (Sequence, error)
	// Seed creates the row if it does not exist yet.
	Seed(ctx context.Context, seq Sequence) error
}

// Defaults are the prefixes seeded for the known document families.
var Defaults = map[shared.DocType]Sequence{
	shared.DocPurchaseRequest: {DocType: shared.DocPurchaseRequest, Prefix: "PR-", PadLength: 6},
	shared.DocPurchaseOrder:   {DocType: shared.DocPurchaseOrder, Prefix: "PO-", PadLength: 6},
	shared.DocGoodsReceipt:    {DocType: shared.DocGoodsReceipt, Prefix: "GRN-", PadLength: 6},
	shared.DocStockMovement:   {DocType: shared.DocStockMovement, Prefix: "MV-", PadLength: 6},
	shared.DocStockTake:       {DocType: shared.DocStockTake, Prefix: "ST-", PadLength: 6},
	shared.DocAdjustment:      {DocType: shared.DocAdjustment, Prefix: "ADJ-", PadLength: 6},
}

// Sequencer hands out document numbers.
type Sequencer struct {
	defaults map[shared.DocType]Sequence
}

// New constructs a Sequencer that seeds unknown types from defaults.
func New(defaults map[shared.DocType]Sequence) *Sequencer {
	if defaults == nil {
		defaults = Defaults
	}
	return &Sequencer{defaults: defaults}
}

// Next draws the next number for docType through store.
func (s *Sequencer) Next(ctx context.Context, store Store, docType shared.DocType) (string, error) {
	if docType == "" {
		return "", fmt.Errorf("%w: sequence: doc type required", shared.ErrValidation)
	}
	seq, err := store.Increment(ctx, docType)
	if errors.Is(err, shared.ErrNotFound) {
		def, ok := s.defaults[docType]
		if !ok {
			return "", fmt.Errorf("%w: sequence for %s", shared.ErrNotFound, docType)
		}
		if err := store.Seed(ctx, def); err != nil {
			return "", err
		}
		seq, err = store.Increment(ctx, docType)
	}
	if err != nil {
		return "", err
	}
	return Format(seq.Prefix, seq.CurrentNo, seq.PadLength), nil
}

// Format renders prefix followed by n zero-padded to pad digits. Numbers wider
// than pad are rendered in full.
func Format(prefix string, n int64, pad int) string {
	digits := fmt.Sprintf("%d", n)
	if len(digits) < pad {
		digits = strings.Repeat("0", pad-len(digits)) + digits
	}
	return prefix + digits
}
