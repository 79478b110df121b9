package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/stocktake"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// StockTakes is an in-memory stocktake.RepositoryPort. Its transactions
// also carry Movements so approval can post the adjustment.
type StockTakes struct {
	Movements *Movements
	Catalog   *Catalog

	mu    sync.Mutex
	takes map[int64]stocktake.StockTake
}

// NewStockTakes returns an empty stock take repository.
func NewStockTakes(movements *Movements, catalog *Catalog) *StockTakes {
	return &StockTakes{Movements: movements, Catalog: catalog, takes: make(map[int64]stocktake.StockTake)}
}

// WithTx implements stocktake.RepositoryPort.
func (r *StockTakes) WithTx(ctx context.Context, fn func(context.Context, stocktake.TxRepository) error) error {
	return r.Movements.Store.RunTx(func() error {
		return r.Movements.Tx(func() error {
			r.mu.Lock()
			snap := make(map[int64]stocktake.StockTake, len(r.takes))
			for id, st := range r.takes {
				st.Lines = slices.Clone(st.Lines)
				snap[id] = st
			}
			r.mu.Unlock()
			if err := fn(ctx, &StockTakeTx{MovementTx: r.Movements.TxRepo(), repo: r}); err != nil {
				r.mu.Lock()
				r.takes = snap
				r.mu.Unlock()
				return err
			}
			return nil
		})
	})
}

// GetStockTake implements stocktake.RepositoryPort.
func (r *StockTakes) GetStockTake(_ context.Context, id int64) (stocktake.StockTake, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.takes[id]
	if !ok {
		return stocktake.StockTake{}, fmt.Errorf("%w: stock take %d", shared.ErrNotFound, id)
	}
	st.Lines = slices.Clone(st.Lines)
	return st, nil
}

// ListStockTakes implements stocktake.RepositoryPort.
func (r *StockTakes) ListStockTakes(_ context.Context, filter stocktake.ListFilter) ([]stocktake.StockTake, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stocktake.StockTake
	for _, st := range r.takes {
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		if filter.WarehouseID != 0 && st.WarehouseID != filter.WarehouseID {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// StockTakeTx implements stocktake.TxRepository.
type StockTakeTx struct {
	*MovementTx
	repo *StockTakes
}

// CreateStockTake implements stocktake.TxRepository.
func (t *StockTakeTx) CreateStockTake(_ context.Context, st stocktake.StockTake) (stocktake.StockTake, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	st.ID = t.NextID()
	t.repo.takes[st.ID] = st
	return st, nil
}

// LockStockTake implements stocktake.TxRepository.
func (t *StockTakeTx) LockStockTake(ctx context.Context, id int64) (stocktake.StockTake, error) {
	return t.repo.GetStockTake(ctx, id)
}

// SaveHeader implements stocktake.TxRepository.
func (t *StockTakeTx) SaveHeader(_ context.Context, st stocktake.StockTake) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	current, ok := t.repo.takes[st.ID]
	if !ok {
		return fmt.Errorf("%w: stock take %d", shared.ErrNotFound, st.ID)
	}
	current.Status = st.Status
	current.AdjustmentID = st.AdjustmentID
	current.StartedAt = st.StartedAt
	current.CompletedAt = st.CompletedAt
	current.ApprovedAt = st.ApprovedAt
	t.repo.takes[st.ID] = current
	return nil
}

// ReplaceLines implements stocktake.TxRepository.
func (t *StockTakeTx) ReplaceLines(_ context.Context, stockTakeID int64, lines []stocktake.Line) ([]stocktake.Line, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	st, ok := t.repo.takes[stockTakeID]
	if !ok {
		return nil, fmt.Errorf("%w: stock take %d", shared.ErrNotFound, stockTakeID)
	}
	out := make([]stocktake.Line, len(lines))
	for i, line := range lines {
		line.ID = t.NextID()
		line.StockTakeID = stockTakeID
		out[i] = line
	}
	st.Lines = out
	t.repo.takes[stockTakeID] = st
	return slices.Clone(out), nil
}

// AddLine implements stocktake.TxRepository.
func (t *StockTakeTx) AddLine(_ context.Context, line stocktake.Line) (stocktake.Line, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	st, ok := t.repo.takes[line.StockTakeID]
	if !ok {
		return stocktake.Line{}, fmt.Errorf("%w: stock take %d", shared.ErrNotFound, line.StockTakeID)
	}
	line.ID = t.NextID()
	st.Lines = append(slices.Clone(st.Lines), line)
	t.repo.takes[st.ID] = st
	return line, nil
}

// SaveCounts implements stocktake.TxRepository.
func (t *StockTakeTx) SaveCounts(_ context.Context, lines []stocktake.Line) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, line := range lines {
		st, ok := t.repo.takes[line.StockTakeID]
		if !ok {
			return fmt.Errorf("%w: stock take %d", shared.ErrNotFound, line.StockTakeID)
		}
		st.Lines = slices.Clone(st.Lines)
		for i := range st.Lines {
			if st.Lines[i].ID == line.ID {
				st.Lines[i].CountedQty = line.CountedQty
				st.Lines[i].Counted = line.Counted
			}
		}
		t.repo.takes[st.ID] = st
	}
	return nil
}

// WarehouseBalances implements stocktake.TxRepository using the catalog to
// place locations in warehouses.
func (t *StockTakeTx) WarehouseBalances(ctx context.Context, warehouseID int64) ([]inventory.Balance, error) {
	var out []inventory.Balance
	for _, b := range t.Balances() {
		if b.QtyOnHand.IsZero() {
			continue
		}
		loc, err := t.repo.Catalog.GetLocation(ctx, b.Key.LocationID)
		if err != nil {
			return nil, err
		}
		if loc.WarehouseID == warehouseID {
			out = append(out, b)
		}
	}
	return out, nil
}

var (
	_ stocktake.RepositoryPort = (*StockTakes)(nil)
	_ stocktake.TxRepository   = (*StockTakeTx)(nil)
)
