package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocType names a document family. It doubles as the sequencer key.
type DocType string

const (
	DocPurchaseRequest DocType = "PR"
	DocPurchaseOrder   DocType = "PO"
	DocGoodsReceipt    DocType = "GRN"
	DocStockMovement   DocType = "MV"
	DocStockTake       DocType = "ST"
	DocAdjustment      DocType = "ADJ"
)

// DocumentEvent is one append-only row of the document event log. The columns
// are fixed; actions that need more context use the Reason and Related fields.
type DocumentEvent struct {
	ID             int64     `json:"id"`
	ActorID        int64     `json:"actor_id"`
	Action         string    `json:"action"`
	DocType        DocType   `json:"doc_type"`
	DocID          int64     `json:"doc_id"`
	DocNumber      string    `json:"doc_number"`
	FromStatus     string    `json:"from_status,omitempty"`
	ToStatus       string    `json:"to_status"`
	Reason         string    `json:"reason,omitempty"`
	RelatedDocType DocType   `json:"related_doc_type,omitempty"`
	RelatedDocID   int64     `json:"related_doc_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventLog appends document events inside the caller's transaction.
type EventLog interface {
	AppendEvent(ctx context.Context, event DocumentEvent) error
}

// TxEventLog writes document events through an open transaction.
type TxEventLog struct {
	tx pgx.Tx
}

// NewTxEventLog binds the event log to tx.
func NewTxEventLog(tx pgx.Tx) *TxEventLog {
	return &TxEventLog{tx: tx}
}

// AppendEvent persists the event.
func (l *TxEventLog) AppendEvent(ctx context.Context, event DocumentEvent) error {
	if l == nil || l.tx == nil {
		return errors.New("event log not initialised")
	}
	if err := ValidateEvent(event); err != nil {
		return err
	}
	_, err := l.tx.Exec(ctx, `INSERT INTO document_events (actor_id, action, doc_type, doc_id, doc_number, from_status, to_status, reason, related_doc_type, related_doc_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11, NOW()))`,
		nullInt(event.ActorID), event.Action, string(event.DocType), event.DocID, event.DocNumber,
		event.FromStatus, event.ToStatus, event.Reason, string(event.RelatedDocType), nullInt(event.RelatedDocID), nullTime(event.OccurredAt))
	return err
}

// ValidateEvent checks the mandatory columns of an event.
func ValidateEvent(event DocumentEvent) error {
	if event.Action == "" || event.DocType == "" || event.DocID == 0 || event.ToStatus == "" {
		return errors.New("document event requires action/doc_type/doc_id/to_status")
	}
	return nil
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
