package testutil

import (
	"context"
	"sort"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// InventoryRepo adapts Store and Catalog to inventory.RepositoryPort.
type InventoryRepo struct {
	Store   *Store
	Catalog *Catalog
}

// WithTx implements inventory.RepositoryPort.
func (r *InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.Store.RunTx(func() error { return fn(ctx, r.Store) })
}

// ListBalances implements inventory.RepositoryPort.
func (r *InventoryRepo) ListBalances(_ context.Context, filter inventory.BalanceFilter) ([]inventory.Balance, error) {
	var out []inventory.Balance
	for _, bal := range r.Store.Balances() {
		k := bal.Key
		switch {
		case filter.ProductID != 0 && k.ProductID != filter.ProductID,
			filter.VariantID != 0 && k.VariantID != filter.VariantID,
			filter.LocationID != 0 && k.LocationID != filter.LocationID,
			filter.LotID != 0 && k.LotID != filter.LotID,
			filter.NonZero && bal.QtyOnHand.IsZero():
			continue
		}
		if filter.WarehouseID != 0 && r.Catalog != nil {
			loc, err := r.Catalog.GetLocation(context.Background(), k.LocationID)
			if err != nil || loc.WarehouseID != filter.WarehouseID {
				continue
			}
		}
		out = append(out, bal)
	}
	return out, nil
}

// GetStockCard implements inventory.RepositoryPort.
func (r *InventoryRepo) GetStockCard(_ context.Context, filter inventory.CardFilter) ([]inventory.CardEntry, error) {
	out := []inventory.CardEntry{}
	for _, e := range r.Store.Cards() {
		if e.Key.ProductID != filter.ProductID || e.Key.LocationID != filter.LocationID {
			continue
		}
		if !filter.From.IsZero() && e.PostedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.PostedAt.After(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListLots implements inventory.RepositoryPort.
func (r *InventoryRepo) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.Lot, error) {
	var out []inventory.Lot
	for _, lot := range r.Store.Lots() {
		if filter.ProductID != 0 && lot.ProductID != filter.ProductID {
			continue
		}
		if !filter.ExpiringBefore.IsZero() && (lot.ExpiryDate == nil || !lot.ExpiryDate.Before(filter.ExpiringBefore)) {
			continue
		}
		out = append(out, lot)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

// LowStock implements inventory.RepositoryPort.
func (r *InventoryRepo) LowStock(_ context.Context, productIDs []int64) ([]inventory.LowStockAlert, error) {
	var alerts []inventory.LowStockAlert
	for _, id := range productIDs {
		p := r.Catalog.Product(id)
		if p.ID == 0 || p.DeletedAt != nil || !p.ReorderPoint.IsPositive() {
			continue
		}
		onHand := r.Store.OnHand(id)
		if onHand.GreaterThan(p.ReorderPoint) {
			continue
		}
		alerts = append(alerts, inventory.LowStockAlert{ProductID: id, SKU: p.SKU, QtyOnHand: onHand, ReorderPoint: p.ReorderPoint})
	}
	return alerts, nil
}

var _ inventory.RepositoryPort = (*InventoryRepo)(nil)
