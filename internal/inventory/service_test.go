package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

type fixture struct {
	store    *testutil.Store
	catalog  *testutil.Catalog
	notifier *testutil.Notifier
	service  *inventory.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := testutil.NewStore()
	catalog := testutil.NewCatalog()
	notifier := &testutil.Notifier{}
	repo := &testutil.InventoryRepo{Store: store, Catalog: catalog}
	return fixture{
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		service:  inventory.NewService(repo, nil, inventory.ServiceConfig{}, notifier, nil),
	}
}

func TestServiceRequiresPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nobody := testutil.Actor(1)

	_, err := f.service.Balances(ctx, nobody, inventory.BalanceFilter{})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	_, err = f.service.Reserve(ctx, nobody, inventory.ReservationInput{Key: rackA, Qty: testutil.D("1")})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	viewer := testutil.Actor(2, shared.PermInventoryView)
	_, err = f.service.StockCard(ctx, viewer, inventory.CardFilter{ProductID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceReserveFailsAtomically(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(rackA, testutil.D("5"), testutil.D("1"))
	actor := testutil.Actor(1, shared.PermInventoryReserve, shared.PermInventoryView)
	ctx := context.Background()

	_, err := f.service.Reserve(ctx, actor, inventory.ReservationInput{Key: rackA, Qty: testutil.D("6")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, f.store.Balance(rackA).QtyReserved.IsZero())

	bal, err := f.service.Reserve(ctx, actor, inventory.ReservationInput{Key: rackA, Qty: testutil.D("5")})
	require.NoError(t, err)
	require.True(t, bal.Available().IsZero())

	balances, err := f.service.Balances(ctx, actor, inventory.BalanceFilter{ProductID: 1, NonZero: true})
	require.NoError(t, err)
	require.Len(t, balances, 1)
}

func TestCheckLowStockEmitsEvents(t *testing.T) {
	f := newFixture(t)
	low := f.catalog.AddProduct(masterdata.Product{SKU: "bolt-m8", Name: "Bolt", ReorderPoint: testutil.D("10")})
	plenty := f.catalog.AddProduct(masterdata.Product{SKU: "nut-m8", Name: "Nut", ReorderPoint: testutil.D("10")})
	f.store.SetBalance(inventory.BalanceKey{ProductID: low.ID, LocationID: 10}, testutil.D("4"), testutil.D("1"))
	f.store.SetBalance(inventory.BalanceKey{ProductID: low.ID, LocationID: 20}, testutil.D("6"), testutil.D("1"))
	f.store.SetBalance(inventory.BalanceKey{ProductID: plenty.ID, LocationID: 10}, testutil.D("50"), testutil.D("1"))

	alerts := f.service.CheckLowStock(context.Background(), []int64{plenty.ID, low.ID, low.ID})
	require.Len(t, alerts, 1)
	require.Equal(t, low.ID, alerts[0].ProductID)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, shared.EventStockLow, events[0].Type)
	require.Equal(t, "BOLT-M8", events[0].Payload["sku"])
	require.Equal(t, "10", events[0].Payload["qty_on_hand"])
}

func TestDecrementedProducts(t *testing.T) {
	entries := []inventory.CardEntry{
		{Key: inventory.BalanceKey{ProductID: 3}, QtyOut: testutil.D("1")},
		{Key: inventory.BalanceKey{ProductID: 2}, QtyIn: testutil.D("1")},
		{Key: inventory.BalanceKey{ProductID: 3}, QtyOut: testutil.D("2")},
		{Key: inventory.BalanceKey{ProductID: 1}, QtyOut: testutil.D("2")},
	}
	require.Equal(t, []int64{1, 3}, inventory.DecrementedProducts(entries))
}

func TestReceiveLot(t *testing.T) {
	store := testutil.NewStore()
	ctx := context.Background()
	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)

	lot, err := inventory.ReceiveLot(ctx, store, inventory.LotReceipt{ProductID: 1, LotNumber: " l-001 ", Qty: testutil.D("60"), ExpiryDate: &expiry})
	require.NoError(t, err)
	require.Equal(t, "L-001", lot.LotNumber)

	again, err := inventory.ReceiveLot(ctx, store, inventory.LotReceipt{ProductID: 1, LotNumber: "L-001", Qty: testutil.D("40")})
	require.NoError(t, err)
	require.Equal(t, lot.ID, again.ID)
	require.True(t, testutil.D("100").Equal(again.ReceivedQty))

	other := expiry.AddDate(0, 1, 0)
	_, err = inventory.ReceiveLot(ctx, store, inventory.LotReceipt{ProductID: 1, LotNumber: "L-001", Qty: testutil.D("1"), ExpiryDate: &other})
	require.ErrorIs(t, err, shared.ErrValidation)

	made := expiry.AddDate(0, 0, 1)
	_, err = inventory.ReceiveLot(ctx, store, inventory.LotReceipt{ProductID: 1, LotNumber: "L-002", Qty: testutil.D("1"), ExpiryDate: &expiry, ManufacturedDate: &made})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = inventory.ReceiveLot(ctx, store, inventory.LotReceipt{ProductID: 1, LotNumber: "", Qty: testutil.D("1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, store.Lots(), 1)
}
