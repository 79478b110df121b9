package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LedgerTx
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxLedger(tx))
	})
}

// TxLedger implements LedgerTx and LotTx over an open transaction. Other
// packages embed it in their own transactional repositories so document
// writes and ledger writes share one transaction.
type TxLedger struct {
	tx pgx.Tx
}

// NewTxLedger binds the ledger store to tx.
func NewTxLedger(tx pgx.Tx) *TxLedger {
	return &TxLedger{tx: tx}
}

const balanceColumns = `id, product_id, COALESCE(variant_id, 0), location_id, COALESCE(lot_id, 0), qty_on_hand, qty_reserved, avg_cost, updated_at`

// LockBalance implements LedgerTx.
func (r *TxLedger) LockBalance(ctx context.Context, key BalanceKey) (Balance, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (product_id, variant_id, location_id, lot_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (product_id, COALESCE(variant_id, 0), location_id, COALESCE(lot_id, 0)) DO NOTHING`,
		key.ProductID, nullInt(key.VariantID), key.LocationID, nullInt(key.LotID)); err != nil {
		return Balance{}, err
	}
	row := r.tx.QueryRow(ctx, `SELECT `+balanceColumns+`
FROM stock_balances
WHERE product_id=$1 AND COALESCE(variant_id, 0)=$2 AND location_id=$3 AND COALESCE(lot_id, 0)=$4
FOR UPDATE`, key.ProductID, key.VariantID, key.LocationID, key.LotID)
	return scanBalance(row)
}

// SaveBalance implements LedgerTx.
func (r *TxLedger) SaveBalance(ctx context.Context, balance Balance) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_balances SET qty_on_hand=$2, qty_reserved=$3, avg_cost=$4, updated_at=NOW() WHERE id=$1`,
		balance.ID, balance.QtyOnHand, balance.QtyReserved, balance.AvgCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: balance %d", shared.ErrNotFound, balance.ID)
	}
	return nil
}

// InsertCardEntry implements LedgerTx.
func (r *TxLedger) InsertCardEntry(ctx context.Context, e CardEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_cards (product_id, variant_id, location_id, lot_id, doc_type, doc_id, doc_number, qty_in, qty_out, balance_qty, unit_cost, avg_cost, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.Key.ProductID, nullInt(e.Key.VariantID), e.Key.LocationID, nullInt(e.Key.LotID),
		string(e.Ref.DocType), e.Ref.DocID, e.Ref.DocNumber, e.QtyIn, e.QtyOut, e.BalanceQty, e.UnitCost, e.AvgCost, e.PostedAt)
	return err
}

// EnsureLot implements LotTx.
func (r *TxLedger) EnsureLot(ctx context.Context, lot Lot) (Lot, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO lots (product_id, variant_id, lot_number, expiry_date, manufactured_date, received_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (product_id, COALESCE(variant_id, 0), lot_number) DO NOTHING`,
		lot.ProductID, nullInt(lot.VariantID), lot.LotNumber, lot.ExpiryDate, lot.ManufacturedDate, lot.ReceivedAt); err != nil {
		return Lot{}, err
	}
	row := r.tx.QueryRow(ctx, `SELECT `+lotColumns+`
FROM lots WHERE product_id=$1 AND COALESCE(variant_id, 0)=$2 AND lot_number=$3
FOR UPDATE`, lot.ProductID, lot.VariantID, lot.LotNumber)
	return scanLot(row)
}

// GetLot implements LedgerTx.
func (r *TxLedger) GetLot(ctx context.Context, id int64) (Lot, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+lotColumns+`
FROM lots WHERE id=$1
FOR SHARE`, id)
	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, fmt.Errorf("%w: lot %d", shared.ErrNotFound, id)
	}
	return lot, err
}

// AddLotReceived implements LotTx.
func (r *TxLedger) AddLotReceived(ctx context.Context, lotID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET received_qty = received_qty + $2 WHERE id=$1`, lotID, qty)
	return err
}

const lotColumns = `id, product_id, COALESCE(variant_id, 0), lot_number, received_qty, expiry_date, manufactured_date, received_at`

// ListBalances returns balances matching filter.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT b.id, b.product_id, COALESCE(b.variant_id, 0), b.location_id, COALESCE(b.lot_id, 0), b.qty_on_hand, b.qty_reserved, b.avg_cost, b.updated_at
FROM stock_balances b
JOIN locations l ON l.id = b.location_id
WHERE ($1 = 0 OR b.product_id = $1)
  AND ($2 = 0 OR COALESCE(b.variant_id, 0) = $2)
  AND ($3 = 0 OR b.location_id = $3)
  AND ($4 = 0 OR l.warehouse_id = $4)
  AND ($5 = 0 OR COALESCE(b.lot_id, 0) = $5)
  AND (NOT $6 OR b.qty_on_hand <> 0)
ORDER BY b.product_id, b.variant_id NULLS FIRST, b.location_id, b.lot_id NULLS FIRST
LIMIT $7`, filter.ProductID, filter.VariantID, filter.LocationID, filter.WarehouseID, filter.LotID, filter.NonZero, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []Balance
	for rows.Next() {
		bal, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// GetStockCard lists stock card entries.
func (r *Repository) GetStockCard(ctx context.Context, filter CardFilter) ([]CardEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT id, product_id, COALESCE(variant_id, 0), location_id, COALESCE(lot_id, 0), doc_type, doc_id, doc_number, qty_in, qty_out, balance_qty, unit_cost, avg_cost, posted_at
FROM inventory_cards
WHERE product_id=$1 AND location_id=$2 AND posted_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $5`, filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []CardEntry{}
	for rows.Next() {
		var e CardEntry
		var docType string
		if err := rows.Scan(&e.ID, &e.Key.ProductID, &e.Key.VariantID, &e.Key.LocationID, &e.Key.LotID, &docType, &e.Ref.DocID, &e.Ref.DocNumber,
			&e.QtyIn, &e.QtyOut, &e.BalanceQty, &e.UnitCost, &e.AvgCost, &e.PostedAt); err != nil {
			return nil, err
		}
		e.Ref.DocType = shared.DocType(docType)
		cards = append(cards, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// ListLots returns lots ordered by expiry date, earliest first.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+lotColumns+`
FROM lots
WHERE ($1 = 0 OR product_id = $1)
  AND ($2::timestamptz IS NULL OR (expiry_date IS NOT NULL AND expiry_date < $2))
ORDER BY expiry_date ASC NULLS LAST, received_at ASC
LIMIT $3`, filter.ProductID, nullTime(filter.ExpiringBefore), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// LowStock compares total on-hand per product with its reorder point.
func (r *Repository) LowStock(ctx context.Context, productIDs []int64) ([]LowStockAlert, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT p.id, p.sku, COALESCE(SUM(b.qty_on_hand), 0), p.reorder_point
FROM products p
LEFT JOIN stock_balances b ON b.product_id = p.id
WHERE p.id = ANY($1) AND p.deleted_at IS NULL AND p.reorder_point > 0
GROUP BY p.id, p.sku, p.reorder_point
HAVING COALESCE(SUM(b.qty_on_hand), 0) <= p.reorder_point
ORDER BY p.id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []LowStockAlert
	for rows.Next() {
		var a LowStockAlert
		if err := rows.Scan(&a.ProductID, &a.SKU, &a.QtyOnHand, &a.ReorderPoint); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanBalance(row pgx.Row) (Balance, error) {
	var bal Balance
	err := row.Scan(&bal.ID, &bal.Key.ProductID, &bal.Key.VariantID, &bal.Key.LocationID, &bal.Key.LotID,
		&bal.QtyOnHand, &bal.QtyReserved, &bal.AvgCost, &bal.UpdatedAt)
	return bal, err
}

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.VariantID, &lot.LotNumber, &lot.ReceivedQty, &lot.ExpiryDate, &lot.ManufacturedDate, &lot.ReceivedAt)
	return lot, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
