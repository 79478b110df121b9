package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceive increments stock at the destination location.
	MovementReceive MovementType = "RECEIVE"
	// MovementIssue decrements stock at the source location.
	MovementIssue MovementType = "ISSUE"
	// MovementTransfer moves stock between two locations.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjust applies a signed correction at the destination location.
	MovementAdjust MovementType = "ADJUST"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementIssue, MovementTransfer, MovementAdjust:
		return true
	}
	return false
}

// BalanceKey identifies one ledger row. Zero VariantID or LotID means none.
type BalanceKey struct {
	ProductID  int64 `json:"product_id"`
	VariantID  int64 `json:"variant_id,omitempty"`
	LocationID int64 `json:"location_id"`
	LotID      int64 `json:"lot_id,omitempty"`
}

// Less orders keys for lock acquisition.
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	if k.VariantID != o.VariantID {
		return k.VariantID < o.VariantID
	}
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.LotID < o.LotID
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("product=%d variant=%d location=%d lot=%d", k.ProductID, k.VariantID, k.LocationID, k.LotID)
}

// Balance is the ledger row for a key.
type Balance struct {
	ID          int64           `json:"id"`
	Key         BalanceKey      `json:"key"`
	QtyOnHand   decimal.Decimal `json:"qty_on_hand"`
	QtyReserved decimal.Decimal `json:"qty_reserved"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available returns on-hand quantity not yet reserved.
func (b Balance) Available() decimal.Decimal {
	return b.QtyOnHand.Sub(b.QtyReserved)
}

// Policy carries the ledger settings that change posting outcomes.
type Policy struct {
	AllowNegative bool
}

// DocRef points at the document that caused a ledger change.
type DocRef struct {
	DocType   shared.DocType `json:"doc_type"`
	DocID     int64          `json:"doc_id"`
	DocNumber string         `json:"doc_number"`
}

// Effect is a signed quantity change against one key.
type Effect struct {
	Key      BalanceKey
	Delta    decimal.Decimal
	UnitCost decimal.Decimal
	// CostFrom values an increment without a unit cost at the average cost
	// CostFrom had when the posting started. Transfers use it.
	CostFrom BalanceKey
	Ref      DocRef
}

// CardEntry describes a stock card row written for every applied effect.
type CardEntry struct {
	ID         int64           `json:"id"`
	Key        BalanceKey      `json:"key"`
	Ref        DocRef          `json:"ref"`
	QtyIn      decimal.Decimal `json:"qty_in"`
	QtyOut     decimal.Decimal `json:"qty_out"`
	BalanceQty decimal.Decimal `json:"balance_qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	AvgCost    decimal.Decimal `json:"avg_cost"`
	PostedAt   time.Time       `json:"posted_at"`
}

// LineSpec is the ledger-relevant part of a movement line.
type LineSpec struct {
	Type           MovementType
	ProductID      int64
	VariantID      int64
	LotID          int64
	FromLocationID int64
	ToLocationID   int64
	Qty            decimal.Decimal
	UnitCost       decimal.Decimal
}

// Lot is a batch identity for a product or variant.
type Lot struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	VariantID        int64           `json:"variant_id,omitempty"`
	LotNumber        string          `json:"lot_number"`
	ReceivedQty      decimal.Decimal `json:"received_qty"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	ManufacturedDate *time.Time      `json:"manufactured_date,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
}

// BalanceFilter narrows balance queries. Zero fields are ignored.
type BalanceFilter struct {
	ProductID   int64
	VariantID   int64
	LocationID  int64
	WarehouseID int64
	LotID       int64
	NonZero     bool
	Limit       int
}

// CardFilter narrows stock card queries.
type CardFilter struct {
	ProductID  int64
	LocationID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// LotFilter narrows lot listings. ExpiringBefore selects lots with a known
// expiry date earlier than the given time.
type LotFilter struct {
	ProductID      int64
	ExpiringBefore time.Time
	Limit          int
}

// LowStockAlert reports a product whose total on-hand fell to or below its
// reorder point.
type LowStockAlert struct {
	ProductID    int64           `json:"product_id"`
	SKU          string          `json:"sku"`
	QtyOnHand    decimal.Decimal `json:"qty_on_hand"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
}

// ReservationInput describes a reservation or release request.
type ReservationInput struct {
	Key BalanceKey
	Qty decimal.Decimal
}
