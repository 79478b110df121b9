package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository persists movements in PostgreSQL.
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
		return errors.New("movement repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewTxMovements(tx))
	})
}

// TxMovements implements TxRepository over an open transaction. Stock take
// approval embeds it to post its adjustment in the same transaction.
type TxMovements struct {
	*inventory.TxLedger
	*sequence.TxStore
	*shared.TxEventLog
	tx pgx.Tx
}

// NewTxMovements binds movement, ledger, sequence and event writes to tx.
func NewTxMovements(tx pgx.Tx) *TxMovements {
	return &TxMovements{
		TxLedger:   inventory.NewTxLedger(tx),
		TxStore:    sequence.NewTxStore(tx),
		TxEventLog: shared.NewTxEventLog(tx),
		tx:         tx,
	}
}

// ClaimIdempotencyKey implements TxRepository.
func (r *TxMovements) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	return shared.ClaimIdempotencyKey(ctx, r.tx, key, module, time.Now().UTC())
}

// CreateMovement implements TxRepository.
func (r *TxMovements) CreateMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (number, movement_type, status, ref_doc_type, ref_doc_id, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8) RETURNING id`,
		m.Number, string(m.Type), string(m.Status), string(m.RefDocType), nullInt(m.RefDocID), m.Note, nullInt(m.CreatedBy), m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return Movement{}, err
	}
	lines := make([]Line, 0, len(m.Lines))
	for _, line := range m.Lines {
		line.MovementID = m.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO stock_movement_lines (movement_id, product_id, variant_id, lot_id, from_location_id, to_location_id, qty, unit_cost, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			m.ID, line.ProductID, nullInt(line.VariantID), nullInt(line.LotID), nullInt(line.FromLocationID), nullInt(line.ToLocationID),
			line.Qty, line.UnitCost, line.Note).Scan(&line.ID); err != nil {
			return Movement{}, err
		}
		lines = append(lines, line)
	}
	m.Lines = lines
	return m, nil
}

// LockMovement implements TxRepository.
func (r *TxMovements) LockMovement(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, fmt.Errorf("%w: movement %d", shared.ErrNotFound, id)
		}
		return Movement{}, err
	}
	m.Lines, err = loadLines(ctx, r.tx, id)
	return m, err
}

// UpdateStatus implements TxRepository.
func (r *TxMovements) UpdateStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET status=$2, posted_at=COALESCE($3, posted_at), updated_at=NOW() WHERE id=$1`,
		id, string(status), postedAt)
	return err
}

// GetMovement loads a movement with its lines.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	pool := r.runner.Pool()
	m, err := scanMovement(pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1`, id))
	if err != nil {
		return Movement{}, db.TranslateError(fmt.Errorf("movement %d: %w", id, err))
	}
	m.Lines, err = loadLines(ctx, pool, id)
	return m, err
}

// ListMovements lists movement headers, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.runner.Pool().Query(ctx, `SELECT `+movementColumns+`
FROM stock_movements
WHERE ($1 = '' OR status = $1) AND ($2 = '' OR movement_type = $2)
ORDER BY id DESC
LIMIT $3`, string(filter.Status), string(filter.Type), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const movementColumns = `id, number, movement_type, status, ref_doc_type, COALESCE(ref_doc_id, 0), note, COALESCE(created_by, 0), posted_at, created_at, updated_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var mType, status, refType string
	err := row.Scan(&m.ID, &m.Number, &mType, &status, &refType, &m.RefDocID, &m.Note, &m.CreatedBy, &m.PostedAt, &m.CreatedAt, &m.UpdatedAt)
	m.Type = inventory.MovementType(mType)
	m.Status = Status(status)
	m.RefDocType = shared.DocType(refType)
	return m, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, movementID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, movement_id, product_id, COALESCE(variant_id, 0), COALESCE(lot_id, 0), COALESCE(from_location_id, 0), COALESCE(to_location_id, 0), qty, unit_cost, note
FROM stock_movement_lines WHERE movement_id=$1 ORDER BY id`, movementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.MovementID, &l.ProductID, &l.VariantID, &l.LotID, &l.FromLocationID, &l.ToLocationID, &l.Qty, &l.UnitCost, &l.Note); err != nil {
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
