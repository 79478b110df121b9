package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// LotTx exposes lot persistence inside an open transaction.
type LotTx interface {
	// EnsureLot returns the lot identified by (product, variant, number),
	// inserting it from lot when absent, locked for update.
	EnsureLot(ctx context.Context, lot Lot) (Lot, error)
	AddLotReceived(ctx context.Context, lotID int64, qty decimal.Decimal) error
}

// LotReceipt describes quantity arriving under a lot number.
type LotReceipt struct {
	ProductID        int64
	VariantID        int64
	LotNumber        string
	Qty              decimal.Decimal
	ExpiryDate       *time.Time
	ManufacturedDate *time.Time
	ReceivedAt       time.Time
}

// NormalizeLotNumber trims and upper-cases a lot number.
func NormalizeLotNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// LockOrder returns the indexes of receipts sorted by product, variant and
// normalized lot number. Receiving lots in this order keeps concurrent
// receipts naming the same lots from deadlocking on their row locks.
func LockOrder(receipts []LotReceipt) []int {
	order := make([]int, len(receipts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		x, y := receipts[order[a]], receipts[order[b]]
		if x.ProductID != y.ProductID {
			return x.ProductID < y.ProductID
		}
		if x.VariantID != y.VariantID {
			return x.VariantID < y.VariantID
		}
		return NormalizeLotNumber(x.LotNumber) < NormalizeLotNumber(y.LotNumber)
	})
	return order
}

// ReceiveLot associates received quantity with a lot, creating the lot on
// first receipt. Later receipts must not contradict the recorded dates.
func ReceiveLot(ctx context.Context, tx LotTx, in LotReceipt) (Lot, error) {
	number := NormalizeLotNumber(in.LotNumber)
	if number == "" {
		return Lot{}, fmt.Errorf("%w: lot number required", shared.ErrValidation)
	}
	if in.ProductID == 0 {
		return Lot{}, fmt.Errorf("%w: lot product required", shared.ErrValidation)
	}
	if !in.Qty.IsPositive() {
		return Lot{}, fmt.Errorf("%w: lot quantity must be positive", shared.ErrValidation)
	}
	if in.ExpiryDate != nil && in.ManufacturedDate != nil && in.ExpiryDate.Before(*in.ManufacturedDate) {
		return Lot{}, fmt.Errorf("%w: lot %s expires before it was manufactured", shared.ErrValidation, number)
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	lot, err := tx.EnsureLot(ctx, Lot{
		ProductID:        in.ProductID,
		VariantID:        in.VariantID,
		LotNumber:        number,
		ExpiryDate:       in.ExpiryDate,
		ManufacturedDate: in.ManufacturedDate,
		ReceivedAt:       receivedAt,
	})
	if err != nil {
		return Lot{}, err
	}
	if !sameDate(lot.ExpiryDate, in.ExpiryDate) {
		return Lot{}, fmt.Errorf("%w: lot %s already recorded with a different expiry date", shared.ErrValidation, number)
	}
	if err := tx.AddLotReceived(ctx, lot.ID, in.Qty); err != nil {
		return Lot{}, err
	}
	lot.ReceivedQty = lot.ReceivedQty.Add(in.Qty)
	return lot, nil
}

// sameDate treats a missing incoming date as agreeing with the recorded one.
func sameDate(recorded, incoming *time.Time) bool {
	if incoming == nil {
		return true
	}
	if recorded == nil {
		return false
	}
	ry, rm, rd := recorded.Date()
	iy, im, id := incoming.Date()
	return ry == iy && rm == im && rd == id
}
