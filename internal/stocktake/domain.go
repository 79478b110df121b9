package stocktake

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the stock take lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusApproved   Status = "APPROVED"
	StatusCancelled  Status = "CANCELLED"
)

// StockTake is a physical count session for one warehouse.
type StockTake struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	WarehouseID  int64      `json:"warehouse_id"`
	Status       Status     `json:"status"`
	Note         string     `json:"note,omitempty"`
	AdjustmentID int64      `json:"adjustment_id,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Lines        []Line     `json:"lines"`
}

// Line is one counted balance. SystemQty is the on-hand quantity when the
// count started.
type Line struct {
	ID          int64           `json:"id"`
	StockTakeID int64           `json:"stock_take_id"`
	ProductID   int64           `json:"product_id"`
	VariantID   int64           `json:"variant_id,omitempty"`
	LocationID  int64           `json:"location_id"`
	LotID       int64           `json:"lot_id,omitempty"`
	SystemQty   decimal.Decimal `json:"system_qty"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Counted     bool            `json:"counted"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Variance is counted minus system quantity; zero for uncounted lines.
func (l Line) Variance() decimal.Decimal {
	if !l.Counted {
		return decimal.Zero
	}
	return l.CountedQty.Sub(l.SystemQty)
}

// sameItem reports whether l counts the same balance as c.
func (l Line) sameItem(c Count) bool {
	return l.ProductID == c.ProductID && l.VariantID == c.VariantID && l.LocationID == c.LocationID && l.LotID == c.LotID
}

// CreateInput describes a new stock take.
type CreateInput struct {
	WarehouseID int64
	Note        string
}

// Count records a counted quantity. LineID addresses a snapshot line;
// without it the item fields identify the balance, and stock found where
// the snapshot had none is added as a new line.
type Count struct {
	LineID     int64
	ProductID  int64
	VariantID  int64
	LocationID int64
	LotID      int64
	Qty        decimal.Decimal
}

// ListFilter narrows listings.
type ListFilter struct {
	Status      Status
	WarehouseID int64
	Limit       int
}
