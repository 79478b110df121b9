package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxStore increments doc_sequences rows through an open transaction. The row
// lock taken by UPDATE is held until the caller commits.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore binds the store to tx.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// Increment implements Store.
func (s *TxStore) Increment(ctx context.Context, docType shared.DocType) (Sequence, error) {
	seq := Sequence{DocType: docType}
	err := s.tx.QueryRow(ctx, `UPDATE doc_sequences SET current_no = current_no + 1, updated_at = NOW()
WHERE doc_type = $1
RETURNING prefix, current_no, pad_length`, string(docType)).Scan(&seq.Prefix, &seq.CurrentNo, &seq.PadLength)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sequence{}, fmt.Errorf("%w: sequence %s", shared.ErrNotFound, docType)
		}
		return Sequence{}, err
	}
	return seq, nil
}

// Seed implements Store.
func (s *TxStore) Seed(ctx context.Context, seq Sequence) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO doc_sequences (doc_type, prefix, current_no, pad_length)
VALUES ($1,$2,$3,$4)
ON CONFLICT (doc_type) DO NOTHING`, string(seq.DocType), seq.Prefix, seq.CurrentNo, seq.PadLength)
	return err
}
