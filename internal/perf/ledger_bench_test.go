package perf

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/batch"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

type ledgerFixture struct {
	store  *testutil.Store
	ledger *inventory.Ledger
	there  []inventory.Effect
	back   []inventory.Effect
}

func newLedgerFixture(tb testing.TB) ledgerFixture {
	tb.Helper()
	ctx := context.Background()
	store := testutil.NewStore()
	ledger := inventory.NewLedger()
	const product, rackA, rackB = 1, 10, 11
	ref := inventory.DocRef{DocType: shared.DocStockMovement, DocID: 1, DocNumber: "MV-0001"}

	receipt, err := inventory.EffectsFor(inventory.LineSpec{
		Type: inventory.MovementReceive, ProductID: product, ToLocationID: rackA,
		Qty: decimal.NewFromInt(1000), UnitCost: decimal.RequireFromString("12.50"),
	}, ref)
	if err != nil {
		tb.Fatalf("receipt effects: %v", err)
	}
	if _, err := ledger.Apply(ctx, store, receipt, inventory.Policy{}); err != nil {
		tb.Fatalf("seed: %v", err)
	}
	transfer := func(from, to int64) []inventory.Effect {
		effects, err := inventory.EffectsFor(inventory.LineSpec{
			Type: inventory.MovementTransfer, ProductID: product,
			FromLocationID: from, ToLocationID: to, Qty: decimal.RequireFromString("2.5"),
		}, ref)
		if err != nil {
			tb.Fatalf("transfer effects: %v", err)
		}
		return effects
	}
	return ledgerFixture{store: store, ledger: ledger, there: transfer(rackA, rackB), back: transfer(rackB, rackA)}
}

func (f ledgerFixture) roundTrip(ctx context.Context) error {
	if _, err := f.ledger.Apply(ctx, f.store, f.there, inventory.Policy{}); err != nil {
		return err
	}
	_, err := f.ledger.Apply(ctx, f.store, f.back, inventory.Policy{})
	return err
}

func BenchmarkLedgerTransferRoundTrip(b *testing.B) {
	f := newLedgerFixture(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := f.roundTrip(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBatchOperator(b *testing.B) {
	op := batch.New(8, testutil.Logger())
	ids := make([]int64, 50)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := op.Apply(ctx, ids, func(context.Context, int64) error { return nil }); err != nil {
			b.Fatal(err)
		}
	}
}

func TestLedgerPostingLatencyTarget(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		start := time.Now()
		if err := f.roundTrip(ctx); err != nil {
			t.Fatalf("round trip %d: %v", i, err)
		}
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("ledger posting latency regression: p95=%s", p95)
	}
	if onHand := f.store.OnHand(1); !onHand.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("round trips must conserve stock, got %s", onHand)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
