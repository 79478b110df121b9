package stocktake

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository persists stock takes in PostgreSQL.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock take repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txStockTakes{TxMovements: movement.NewTxMovements(tx), tx: tx})
	})
}

type txStockTakes struct {
	*movement.TxMovements
	tx pgx.Tx
}

const stockTakeColumns = `id, number, warehouse_id, status, note, COALESCE(adjustment_id, 0), COALESCE(created_by, 0), started_at, completed_at, approved_at, created_at`

func (r *txStockTakes) CreateStockTake(ctx context.Context, st StockTake) (StockTake, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_takes (number, warehouse_id, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		st.Number, st.WarehouseID, string(st.Status), st.Note, nullInt(st.CreatedBy), st.CreatedAt).Scan(&st.ID)
	return st, err
}

func (r *txStockTakes) LockStockTake(ctx context.Context, id int64) (StockTake, error) {
	st, err := scanStockTake(r.tx.QueryRow(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockTake{}, fmt.Errorf("%w: stock take %d", shared.ErrNotFound, id)
		}
		return StockTake{}, err
	}
	st.Lines, err = loadLines(ctx, r.tx, id)
	return st, err
}

func (r *txStockTakes) SaveHeader(ctx context.Context, st StockTake) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_takes
SET status=$2, adjustment_id=$3, started_at=$4, completed_at=$5, approved_at=$6
WHERE id=$1`, st.ID, string(st.Status), nullInt(st.AdjustmentID), st.StartedAt, st.CompletedAt, st.ApprovedAt)
	return err
}

func (r *txStockTakes) ReplaceLines(ctx context.Context, stockTakeID int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM stock_take_lines WHERE stock_take_id=$1`, stockTakeID); err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		line.StockTakeID = stockTakeID
		saved, err := r.AddLine(ctx, line)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (r *txStockTakes) AddLine(ctx context.Context, line Line) (Line, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_take_lines (stock_take_id, product_id, variant_id, location_id, lot_id, system_qty, counted_qty, counted, unit_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		line.StockTakeID, line.ProductID, nullInt(line.VariantID), line.LocationID, nullInt(line.LotID),
		line.SystemQty, line.CountedQty, line.Counted, line.UnitCost).Scan(&line.ID)
	return line, err
}

func (r *txStockTakes) SaveCounts(ctx context.Context, lines []Line) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`UPDATE stock_take_lines SET counted_qty=$2, counted=$3 WHERE id=$1`, line.ID, line.CountedQty, line.Counted)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txStockTakes) WarehouseBalances(ctx context.Context, warehouseID int64) ([]inventory.Balance, error) {
	rows, err := r.tx.Query(ctx, `SELECT b.id, b.product_id, COALESCE(b.variant_id, 0), b.location_id, COALESCE(b.lot_id, 0), b.qty_on_hand, b.qty_reserved, b.avg_cost, b.updated_at
FROM stock_balances b
JOIN locations l ON l.id = b.location_id
WHERE l.warehouse_id=$1 AND b.qty_on_hand <> 0
ORDER BY b.product_id, b.variant_id NULLS FIRST, b.location_id, b.lot_id NULLS FIRST
FOR SHARE OF b`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Balance
	for rows.Next() {
		var b inventory.Balance
		if err := rows.Scan(&b.ID, &b.Key.ProductID, &b.Key.VariantID, &b.Key.LocationID, &b.Key.LotID,
			&b.QtyOnHand, &b.QtyReserved, &b.AvgCost, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetStockTake loads a stock take with lines.
func (r *Repository) GetStockTake(ctx context.Context, id int64) (StockTake, error) {
	pool := r.runner.Pool()
	st, err := scanStockTake(pool.QueryRow(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes WHERE id=$1`, id))
	if err != nil {
		return StockTake{}, db.TranslateError(fmt.Errorf("stock take %d: %w", id, err))
	}
	st.Lines, err = loadLines(ctx, pool, id)
	return st, err
}

// ListStockTakes lists headers, newest first.
func (r *Repository) ListStockTakes(ctx context.Context, filter ListFilter) ([]StockTake, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+stockTakeColumns+` FROM stock_takes
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR warehouse_id = $2)
ORDER BY id DESC LIMIT $3`, string(filter.Status), filter.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []StockTake{}
	for rows.Next() {
		st, err := scanStockTake(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStockTake(row pgx.Row) (StockTake, error) {
	var st StockTake
	var status string
	err := row.Scan(&st.ID, &st.Number, &st.WarehouseID, &status, &st.Note, &st.AdjustmentID, &st.CreatedBy,
		&st.StartedAt, &st.CompletedAt, &st.ApprovedAt, &st.CreatedAt)
	st.Status = Status(status)
	return st, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, id int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, stock_take_id, product_id, COALESCE(variant_id, 0), location_id, COALESCE(lot_id, 0), system_qty, counted_qty, counted, unit_cost
FROM stock_take_lines WHERE stock_take_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.StockTakeID, &l.ProductID, &l.VariantID, &l.LocationID, &l.LotID,
			&l.SystemQty, &l.CountedQty, &l.Counted, &l.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
