package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	runner *db.Runner
}

// NewRepository constructs a repository.
func NewRepository(runner *db.Runner) *Repository {
	return &Repository{runner: runner}
}

// WithTx executes the callback inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, newTxProcurement(tx))
	})
}

type txProcurement struct {
	*inventory.TxLedger
	*sequence.TxStore
	*shared.TxEventLog
	tx pgx.Tx
}

func newTxProcurement(tx pgx.Tx) *txProcurement {
	return &txProcurement{
		TxLedger:   inventory.NewTxLedger(tx),
		TxStore:    sequence.NewTxStore(tx),
		TxEventLog: shared.NewTxEventLog(tx),
		tx:         tx,
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Purchase requests

const prColumns = `id, number, status, request_by, note, created_at, updated_at`

func (r *txProcurement) CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_requests (number, status, request_by, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5) RETURNING id`,
		pr.Number, string(pr.Status), pr.RequestBy, pr.Note, pr.CreatedAt).Scan(&pr.ID)
	if err != nil {
		return PurchaseRequest{}, err
	}
	lines := make([]PRLine, 0, len(pr.Lines))
	for _, line := range pr.Lines {
		line.PRID = pr.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO pr_lines (pr_id, product_id, variant_id, qty, note) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			pr.ID, line.ProductID, nullInt(line.VariantID), line.Qty, line.Note).Scan(&line.ID); err != nil {
			return PurchaseRequest{}, err
		}
		lines = append(lines, line)
	}
	pr.Lines = lines
	return pr, nil
}

func (r *txProcurement) LockPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	return getPR(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txProcurement) UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_requests SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func (r *txProcurement) LinkPRLine(ctx context.Context, prLineID, poLineID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pr_lines SET po_line_id=$2 WHERE id=$1 AND po_line_id IS NULL`, prLineID, poLineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: PR line %d already converted", shared.ErrValidation, prLineID)
	}
	return nil
}

// GetPR returns purchase request and lines.
func (r *Repository) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, err := getPR(ctx, r.runner.Pool(), id, "")
	return pr, db.TranslateError(err)
}

// ListPRs lists request headers, newest first.
func (r *Repository) ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error) {
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+prColumns+` FROM purchase_requests
WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2`, filter.Status, listLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurchaseRequest{}
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func getPR(ctx context.Context, q querier, id int64, lock string) (PurchaseRequest, error) {
	pr, err := scanPR(q.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_requests WHERE id=$1`+lock, id))
	if err != nil {
		return PurchaseRequest{}, notFound(err, "purchase request", id)
	}
	rows, err := q.Query(ctx, `SELECT id, pr_id, product_id, COALESCE(variant_id, 0), qty, note, COALESCE(po_line_id, 0)
FROM pr_lines WHERE pr_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l PRLine
		if err := rows.Scan(&l.ID, &l.PRID, &l.ProductID, &l.VariantID, &l.Qty, &l.Note, &l.POLineID); err != nil {
			return PurchaseRequest{}, err
		}
		pr.Lines = append(pr.Lines, l)
	}
	return pr, rows.Err()
}

func scanPR(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	var status string
	err := row.Scan(&pr.ID, &pr.Number, &status, &pr.RequestBy, &pr.Note, &pr.CreatedAt, &pr.UpdatedAt)
	pr.Status = PRStatus(status)
	return pr, err
}

// Purchase orders

const poColumns = `id, number, supplier_id, COALESCE(pr_id, 0), status, currency, expected_date, note, COALESCE(created_by, 0), created_at, updated_at`

func (r *txProcurement) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, pr_id, status, currency, expected_date, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING id`,
		po.Number, po.SupplierID, nullInt(po.PRID), string(po.Status), po.Currency, po.ExpectedDate, po.Note, nullInt(po.CreatedBy), po.CreatedAt).Scan(&po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	lines := make([]POLine, 0, len(po.Lines))
	for _, line := range po.Lines {
		line.POID = po.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO po_lines (po_id, pr_line_id, product_id, variant_id, qty, qty_received, unit_price, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			po.ID, nullInt(line.PRLineID), line.ProductID, nullInt(line.VariantID), line.Qty, line.QtyReceived, line.UnitPrice, line.Note).Scan(&line.ID); err != nil {
			return PurchaseOrder{}, err
		}
		lines = append(lines, line)
	}
	po.Lines = lines
	return po, nil
}

func (r *txProcurement) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPO(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txProcurement) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func (r *txProcurement) AddPOLineReceived(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE po_lines SET qty_received = qty_received + $2 WHERE id=$1`, lineID, qty)
	return db.TranslateError(err)
}

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := getPO(ctx, r.runner.Pool(), id, "")
	return po, db.TranslateError(err)
}

// ListPOs lists order headers, newest first.
func (r *Repository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+poColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2`, filter.Status, listLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func getPO(ctx context.Context, q querier, id int64, lock string) (PurchaseOrder, error) {
	po, err := scanPO(q.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`+lock, id))
	if err != nil {
		return PurchaseOrder{}, notFound(err, "purchase order", id)
	}
	rows, err := q.Query(ctx, `SELECT id, po_id, COALESCE(pr_line_id, 0), product_id, COALESCE(variant_id, 0), qty, qty_received, unit_price, note
FROM po_lines WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l POLine
		if err := rows.Scan(&l.ID, &l.POID, &l.PRLineID, &l.ProductID, &l.VariantID, &l.Qty, &l.QtyReceived, &l.UnitPrice, &l.Note); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.PRID, &status, &po.Currency, &po.ExpectedDate, &po.Note, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.Status = POStatus(status)
	return po, err
}

// Goods receipts

const grnColumns = `id, number, po_id, status, received_at, note, COALESCE(created_by, 0), posted_at, created_at`

func (r *txProcurement) CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, status, received_at, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		grn.Number, grn.POID, string(grn.Status), grn.ReceivedAt, grn.Note, nullInt(grn.CreatedBy), grn.CreatedAt).Scan(&grn.ID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	lines := make([]GRNLine, 0, len(grn.Lines))
	for _, line := range grn.Lines {
		line.GRNID = grn.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO grn_lines (grn_id, po_line_id, product_id, variant_id, location_id, qty, unit_cost, lot_number, expiry_date, manufactured_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			grn.ID, line.POLineID, line.ProductID, nullInt(line.VariantID), line.LocationID, line.Qty, line.UnitCost,
			line.LotNumber, line.ExpiryDate, line.ManufacturedDate).Scan(&line.ID); err != nil {
			return GoodsReceipt{}, err
		}
		lines = append(lines, line)
	}
	grn.Lines = lines
	return grn, nil
}

func (r *txProcurement) LockGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	return getGRN(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txProcurement) UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus, postedAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE goods_receipts SET status=$2, posted_at=COALESCE($3, posted_at) WHERE id=$1`, id, string(status), postedAt)
	return err
}

func (r *txProcurement) SetGRNLineLot(ctx context.Context, lineID, lotID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_lines SET lot_id=$2 WHERE id=$1`, lineID, lotID)
	return err
}

func (r *txProcurement) UpdateLastCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET last_cost=$2, updated_at=NOW() WHERE id=$1`, productID, cost)
	return err
}

// GetGRN returns goods receipt and lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	grn, err := getGRN(ctx, r.runner.Pool(), id, "")
	return grn, db.TranslateError(err)
}

// ListGRNs lists receipt headers, newest first.
func (r *Repository) ListGRNs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error) {
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+grnColumns+` FROM goods_receipts
WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2`, filter.Status, listLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []GoodsReceipt{}
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, grn)
	}
	return out, rows.Err()
}

func getGRN(ctx context.Context, q querier, id int64, lock string) (GoodsReceipt, error) {
	grn, err := scanGRN(q.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts WHERE id=$1`+lock, id))
	if err != nil {
		return GoodsReceipt{}, notFound(err, "goods receipt", id)
	}
	rows, err := q.Query(ctx, `SELECT id, grn_id, po_line_id, product_id, COALESCE(variant_id, 0), location_id, qty, unit_cost,
lot_number, expiry_date, manufactured_date, COALESCE(lot_id, 0)
FROM grn_lines WHERE grn_id=$1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l GRNLine
		if err := rows.Scan(&l.ID, &l.GRNID, &l.POLineID, &l.ProductID, &l.VariantID, &l.LocationID, &l.Qty, &l.UnitCost,
			&l.LotNumber, &l.ExpiryDate, &l.ManufacturedDate, &l.LotID); err != nil {
			return GoodsReceipt{}, err
		}
		grn.Lines = append(grn.Lines, l)
	}
	return grn, rows.Err()
}

func scanGRN(row pgx.Row) (GoodsReceipt, error) {
	var grn GoodsReceipt
	var status string
	err := row.Scan(&grn.ID, &grn.Number, &grn.POID, &status, &grn.ReceivedAt, &grn.Note, &grn.CreatedBy, &grn.PostedAt, &grn.CreatedAt)
	grn.Status = GRNStatus(status)
	return grn, err
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return err
}

func listLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
