package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

var (
	rackA = inventory.BalanceKey{ProductID: 1, LocationID: 10}
	rackB = inventory.BalanceKey{ProductID: 1, LocationID: 20}
	ref   = inventory.DocRef{DocType: shared.DocStockMovement, DocID: 99, DocNumber: "MV-000099"}
)

func apply(t *testing.T, store *testutil.Store, policy inventory.Policy, effects ...inventory.Effect) ([]inventory.CardEntry, error) {
	t.Helper()
	var entries []inventory.CardEntry
	err := store.RunTx(func() error {
		var err error
		entries, err = inventory.NewLedger().Apply(context.Background(), store, effects, policy)
		return err
	})
	return entries, err
}

func TestApplyReceiveThenIssue(t *testing.T) {
	store := testutil.NewStore()

	_, err := apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("100"), UnitCost: testutil.D("10"), Ref: ref})
	require.NoError(t, err)
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("-40"), Ref: ref})
	require.NoError(t, err)

	bal := store.Balance(rackA)
	require.True(t, testutil.D("60").Equal(bal.QtyOnHand), bal.QtyOnHand.String())
	require.True(t, testutil.D("10").Equal(bal.AvgCost))

	cards := store.Cards()
	require.Len(t, cards, 2)
	require.True(t, testutil.D("100").Equal(cards[0].QtyIn))
	require.True(t, testutil.D("40").Equal(cards[1].QtyOut))
	require.True(t, testutil.D("60").Equal(cards[1].BalanceQty))
	require.Equal(t, "MV-000099", cards[1].Ref.DocNumber)
}

func TestApplyOrderIndependent(t *testing.T) {
	effects := []inventory.Effect{
		{Key: rackA, Delta: testutil.D("5"), UnitCost: testutil.D("2"), Ref: ref},
		{Key: rackB, Delta: testutil.D("-3"), Ref: ref},
		{Key: rackA, Delta: testutil.D("-1"), Ref: ref},
	}
	reversed := []inventory.Effect{effects[2], effects[1], effects[0]}

	first := testutil.NewStore()
	first.SetBalance(rackA, testutil.D("1"), testutil.D("2"))
	first.SetBalance(rackB, testutil.D("3"), testutil.D("2"))
	second := testutil.NewStore()
	second.SetBalance(rackA, testutil.D("1"), testutil.D("2"))
	second.SetBalance(rackB, testutil.D("3"), testutil.D("2"))

	_, err := apply(t, first, inventory.Policy{}, effects...)
	require.NoError(t, err)
	_, err = apply(t, second, inventory.Policy{}, reversed...)
	require.NoError(t, err)

	for _, key := range []inventory.BalanceKey{rackA, rackB} {
		require.True(t, first.Balance(key).QtyOnHand.Equal(second.Balance(key).QtyOnHand), key.String())
	}
	require.True(t, testutil.D("5").Equal(first.Balance(rackA).QtyOnHand))
	require.True(t, first.Balance(rackB).QtyOnHand.IsZero())
}

func TestApplyNetsEffectsPerKey(t *testing.T) {
	out := inventory.Effect{Key: rackA, Delta: testutil.D("-5"), Ref: ref}
	in := inventory.Effect{Key: rackA, Delta: testutil.D("10"), UnitCost: testutil.D("3"), Ref: ref}

	for name, effects := range map[string][]inventory.Effect{
		"decrement first": {out, in},
		"increment first": {in, out},
	} {
		t.Run(name, func(t *testing.T) {
			store := testutil.NewStore()
			entries, err := apply(t, store, inventory.Policy{}, effects...)
			require.NoError(t, err)
			require.Len(t, entries, 2)

			bal := store.Balance(rackA)
			require.True(t, testutil.D("5").Equal(bal.QtyOnHand), bal.QtyOnHand.String())
			require.True(t, testutil.D("3").Equal(bal.AvgCost), bal.AvgCost.String())
			require.Len(t, store.Cards(), 2)
		})
	}

	store := testutil.NewStore()
	store.SetBalance(rackA, testutil.D("2"), testutil.D("3"))
	_, err := apply(t, store, inventory.Policy{},
		inventory.Effect{Key: rackA, Delta: testutil.D("4"), UnitCost: testutil.D("3"), Ref: ref},
		inventory.Effect{Key: rackA, Delta: testutil.D("-7"), Ref: ref},
	)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, testutil.D("2").Equal(store.Balance(rackA).QtyOnHand))
	require.Empty(t, store.Cards())
}

func TestApplyRejectsForeignLot(t *testing.T) {
	store := testutil.NewStore()
	lot, err := store.EnsureLot(context.Background(), inventory.Lot{ProductID: 2, LotNumber: "B-7"})
	require.NoError(t, err)

	key := rackA
	key.LotID = lot.ID
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: key, Delta: testutil.D("3"), UnitCost: testutil.D("1"), Ref: ref})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.True(t, store.Balance(key).QtyOnHand.IsZero())
	require.Empty(t, store.Cards())

	key.ProductID = 2
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: key, Delta: testutil.D("3"), UnitCost: testutil.D("1"), Ref: ref})
	require.NoError(t, err)
	require.True(t, testutil.D("3").Equal(store.Balance(key).QtyOnHand))
}

func TestApplyInsufficientStockLeavesBalancesUntouched(t *testing.T) {
	store := testutil.NewStore()
	store.SetBalance(rackA, testutil.D("10"), testutil.D("4"))

	_, err := apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("-15"), Ref: ref})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	bal := store.Balance(rackA)
	require.True(t, testutil.D("10").Equal(bal.QtyOnHand))
	require.Empty(t, store.Cards())
}

func TestApplyAllowNegative(t *testing.T) {
	store := testutil.NewStore()
	store.SetBalance(rackA, testutil.D("10"), testutil.D("4"))

	_, err := apply(t, store, inventory.Policy{AllowNegative: true}, inventory.Effect{Key: rackA, Delta: testutil.D("-15"), Ref: ref})
	require.NoError(t, err)
	bal := store.Balance(rackA)
	require.True(t, testutil.D("-5").Equal(bal.QtyOnHand))
	require.True(t, bal.AvgCost.IsZero())
}

func TestTransferIsAtomic(t *testing.T) {
	store := testutil.NewStore()
	store.SetBalance(rackA, testutil.D("20"), testutil.D("3"))

	line := inventory.LineSpec{Type: inventory.MovementTransfer, ProductID: 1, FromLocationID: 10, ToLocationID: 20, Qty: testutil.D("20")}
	effects, err := inventory.EffectsFor(line, ref)
	require.NoError(t, err)
	require.Len(t, effects, 2)

	_, err = apply(t, store, inventory.Policy{}, effects...)
	require.NoError(t, err)
	require.True(t, store.Balance(rackA).QtyOnHand.IsZero())
	require.True(t, testutil.D("20").Equal(store.Balance(rackB).QtyOnHand))
	require.True(t, testutil.D("3").Equal(store.Balance(rackB).AvgCost), "transfer carries the average cost")
	require.True(t, testutil.D("20").Equal(store.OnHand(1)))

	// A second transfer of the same quantity has nothing left to move.
	_, err = apply(t, store, inventory.Policy{}, effects...)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, testutil.D("20").Equal(store.Balance(rackB).QtyOnHand))
	require.Len(t, store.Cards(), 2)
}

func TestWeightedAverageCost(t *testing.T) {
	store := testutil.NewStore()
	_, err := apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("10"), UnitCost: testutil.D("100"), Ref: ref})
	require.NoError(t, err)
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("30"), UnitCost: testutil.D("120"), Ref: ref})
	require.NoError(t, err)
	require.True(t, testutil.D("115").Equal(store.Balance(rackA).AvgCost))

	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("-40"), Ref: ref})
	require.NoError(t, err)
	require.True(t, store.Balance(rackA).AvgCost.IsZero())

	require.Equal(t, "3.3333", inventory.WeightedAverageCost(testutil.D("0"), testutil.D("0"), testutil.D("3"), testutil.D("3.33333")).String())
	require.Equal(t, "5", inventory.WeightedAverageCost(testutil.D("-2"), testutil.D("9"), testutil.D("1"), testutil.D("5")).String())
}

func TestApplyRejectsMalformedEffects(t *testing.T) {
	store := testutil.NewStore()
	_, err := apply(t, store, inventory.Policy{})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: rackA, Delta: testutil.D("0")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = apply(t, store, inventory.Policy{}, inventory.Effect{Key: inventory.BalanceKey{ProductID: 1}, Delta: testutil.D("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEffectsForValidatesLocations(t *testing.T) {
	cases := []struct {
		name string
		line inventory.LineSpec
		ok   bool
	}{
		{"receive", inventory.LineSpec{Type: inventory.MovementReceive, ProductID: 1, ToLocationID: 10, Qty: testutil.D("1")}, true},
		{"receive with source", inventory.LineSpec{Type: inventory.MovementReceive, ProductID: 1, FromLocationID: 5, ToLocationID: 10, Qty: testutil.D("1")}, false},
		{"issue", inventory.LineSpec{Type: inventory.MovementIssue, ProductID: 1, FromLocationID: 10, Qty: testutil.D("1")}, true},
		{"issue negative", inventory.LineSpec{Type: inventory.MovementIssue, ProductID: 1, FromLocationID: 10, Qty: testutil.D("-1")}, false},
		{"transfer same location", inventory.LineSpec{Type: inventory.MovementTransfer, ProductID: 1, FromLocationID: 10, ToLocationID: 10, Qty: testutil.D("1")}, false},
		{"adjust down", inventory.LineSpec{Type: inventory.MovementAdjust, ProductID: 1, ToLocationID: 10, Qty: testutil.D("-2")}, true},
		{"adjust zero", inventory.LineSpec{Type: inventory.MovementAdjust, ProductID: 1, ToLocationID: 10, Qty: testutil.D("0")}, false},
		{"unknown type", inventory.LineSpec{Type: "SCRAP", ProductID: 1, ToLocationID: 10, Qty: testutil.D("1")}, false},
		{"negative cost", inventory.LineSpec{Type: inventory.MovementReceive, ProductID: 1, ToLocationID: 10, Qty: testutil.D("1"), UnitCost: testutil.D("-1")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := inventory.EffectsFor(tc.line, ref)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestReserveAndRelease(t *testing.T) {
	store := testutil.NewStore()
	store.SetBalance(rackA, testutil.D("10"), testutil.D("1"))
	ledger := inventory.NewLedger()
	ctx := context.Background()

	bal, err := ledger.Reserve(ctx, store, rackA, testutil.D("7"))
	require.NoError(t, err)
	require.True(t, testutil.D("3").Equal(bal.Available()))

	_, err = ledger.Reserve(ctx, store, rackA, testutil.D("4"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = ledger.Release(ctx, store, rackA, testutil.D("8"))
	require.ErrorIs(t, err, shared.ErrValidation)

	bal, err = ledger.Release(ctx, store, rackA, testutil.D("7"))
	require.NoError(t, err)
	require.True(t, bal.QtyReserved.IsZero())
}
