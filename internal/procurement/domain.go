package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PRStatus is the purchase request lifecycle state.
type PRStatus string

const (
	PRStatusDraft     PRStatus = "DRAFT"
	PRStatusSubmitted PRStatus = "SUBMITTED"
	PRStatusApproved  PRStatus = "APPROVED"
	PRStatusConverted PRStatus = "CONVERTED"
	PRStatusRejected  PRStatus = "REJECTED"
	PRStatusCancelled PRStatus = "CANCELLED"
)

// POStatus is the purchase order lifecycle state.
type POStatus string

const (
	POStatusDraft             POStatus = "DRAFT"
	POStatusSubmitted         POStatus = "SUBMITTED"
	POStatusApproved          POStatus = "APPROVED"
	POStatusSent              POStatus = "SENT"
	POStatusInProgress        POStatus = "IN_PROGRESS"
	POStatusPartiallyReceived POStatus = "PARTIALLY_RECEIVED"
	POStatusFullyReceived     POStatus = "FULLY_RECEIVED"
	POStatusClosed            POStatus = "CLOSED"
	POStatusRejected          POStatus = "REJECTED"
	POStatusCancelled         POStatus = "CANCELLED"
)

// GRNStatus is the goods receipt lifecycle state.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "DRAFT"
	GRNStatusPosted    GRNStatus = "POSTED"
	GRNStatusCancelled GRNStatus = "CANCELLED"
)

// PurchaseRequest domain model.
type PurchaseRequest struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Status    PRStatus  `json:"status"`
	RequestBy int64     `json:"request_by"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Lines     []PRLine  `json:"lines"`
}

// PRLine represents requested item. POLineID is set once the line has been
// converted.
type PRLine struct {
	ID        int64           `json:"id"`
	PRID      int64           `json:"pr_id"`
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id,omitempty"`
	Qty       decimal.Decimal `json:"qty"`
	Note      string          `json:"note,omitempty"`
	POLineID  int64           `json:"po_line_id,omitempty"`
}

// Converted reports whether the line already belongs to a PO.
func (l PRLine) Converted() bool {
	return l.POLineID != 0
}

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplier_id"`
	PRID         int64      `json:"pr_id,omitempty"`
	Status       POStatus   `json:"status"`
	Currency     string     `json:"currency"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	Note         string     `json:"note,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Lines        []POLine   `json:"lines"`
}

// POLine represents PO lines.
type POLine struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	PRLineID    int64           `json:"pr_line_id,omitempty"`
	ProductID   int64           `json:"product_id"`
	VariantID   int64           `json:"variant_id,omitempty"`
	Qty         decimal.Decimal `json:"qty"`
	QtyReceived decimal.Decimal `json:"qty_received"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Note        string          `json:"note,omitempty"`
}

// Remaining returns the quantity still expected, never negative.
func (l POLine) Remaining() decimal.Decimal {
	rem := l.Qty.Sub(l.QtyReceived)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// GoodsReceipt domain model.
type GoodsReceipt struct {
	ID         int64      `json:"id"`
	Number     string     `json:"number"`
	POID       int64      `json:"po_id"`
	Status     GRNStatus  `json:"status"`
	ReceivedAt time.Time  `json:"received_at"`
	Note       string     `json:"note,omitempty"`
	CreatedBy  int64      `json:"created_by"`
	PostedAt   *time.Time `json:"posted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Lines      []GRNLine  `json:"lines"`
}

// GRNLine describes received goods.
type GRNLine struct {
	ID               int64           `json:"id"`
	GRNID            int64           `json:"grn_id"`
	POLineID         int64           `json:"po_line_id"`
	ProductID        int64           `json:"product_id"`
	VariantID        int64           `json:"variant_id,omitempty"`
	LocationID       int64           `json:"location_id"`
	Qty              decimal.Decimal `json:"qty"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LotNumber        string          `json:"lot_number,omitempty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	ManufacturedDate *time.Time      `json:"manufactured_date,omitempty"`
	LotID            int64           `json:"lot_id,omitempty"`
}

// CreatePRInput describes creation payload.
type CreatePRInput struct {
	Note  string
	Lines []PRLineInput
}

// PRLineInput describes request line.
type PRLineInput struct {
	ProductID int64
	VariantID int64
	Qty       decimal.Decimal
	Note      string
}

// CreatePOInput describes a purchase order raised without a request.
type CreatePOInput struct {
	SupplierID   int64
	Currency     string
	ExpectedDate *time.Time
	Note         string
	Lines        []POLineInput
}

// POLineInput describes an ordered line.
type POLineInput struct {
	ProductID int64
	VariantID int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Note      string
}

// CreateGRNInput describes GRN creation.
type CreateGRNInput struct {
	POID       int64
	ReceivedAt time.Time
	Note       string
	Lines      []GRNLineInput
}

// GRNLineInput for GRN. A zero UnitCost takes the PO line price.
type GRNLineInput struct {
	POLineID         int64
	LocationID       int64
	Qty              decimal.Decimal
	UnitCost         decimal.Decimal
	LotNumber        string
	ExpiryDate       *time.Time
	ManufacturedDate *time.Time
}

// ListFilter narrows document listings.
type ListFilter struct {
	Status string
	Limit  int
}
