// Package movement implements stock movement documents: receipts, issues,
// transfers and adjustments that reach the ledger only when posted.
package movement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Status is the lifecycle state of a movement.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusPosted    Status = "POSTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Movement is a stock movement document.
type Movement struct {
	ID         int64                  `json:"id"`
	Number     string                 `json:"number"`
	Type       inventory.MovementType `json:"type"`
	Status     Status                 `json:"status"`
	RefDocType shared.DocType         `json:"ref_doc_type,omitempty"`
	RefDocID   int64                  `json:"ref_doc_id,omitempty"`
	Note       string                 `json:"note,omitempty"`
	CreatedBy  int64                  `json:"created_by"`
	PostedAt   *time.Time             `json:"posted_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Lines      []Line                 `json:"lines"`
}

// Line is one product quantity moved by a movement.
type Line struct {
	ID             int64           `json:"id"`
	MovementID     int64           `json:"movement_id"`
	ProductID      int64           `json:"product_id"`
	VariantID      int64           `json:"variant_id,omitempty"`
	LotID          int64           `json:"lot_id,omitempty"`
	FromLocationID int64           `json:"from_location_id,omitempty"`
	ToLocationID   int64           `json:"to_location_id,omitempty"`
	Qty            decimal.Decimal `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Note           string          `json:"note,omitempty"`
}

// Spec returns the ledger view of the line.
func (l Line) Spec(t inventory.MovementType) inventory.LineSpec {
	return inventory.LineSpec{
		Type:           t,
		ProductID:      l.ProductID,
		VariantID:      l.VariantID,
		LotID:          l.LotID,
		FromLocationID: l.FromLocationID,
		ToLocationID:   l.ToLocationID,
		Qty:            l.Qty,
		UnitCost:       l.UnitCost,
	}
}

// Ref returns the ledger document reference of m.
func (m Movement) Ref(docType shared.DocType) inventory.DocRef {
	return inventory.DocRef{DocType: docType, DocID: m.ID, DocNumber: m.Number}
}

// CreateInput captures a new movement.
type CreateInput struct {
	Type       inventory.MovementType
	Note       string
	RefDocType shared.DocType
	RefDocID   int64
	Lines      []Line

	// IdempotencyKey, when set, is claimed for IdempotencyModule in the
	// transaction that creates the movement.
	IdempotencyKey    string
	IdempotencyModule string
}

// ListFilter narrows movement listings.
type ListFilter struct {
	Status Status
	Type   inventory.MovementType
	Limit  int
}
