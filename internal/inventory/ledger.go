package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// LedgerTx exposes the row-level operations the ledger needs inside an open
// transaction.
type LedgerTx interface {
	// LockBalance returns the row for key locked for update, creating an empty
	// row first when none exists so that concurrent first writers serialise.
	LockBalance(ctx context.Context, key BalanceKey) (Balance, error)
	SaveBalance(ctx context.Context, balance Balance) error
	InsertCardEntry(ctx context.Context, entry CardEntry) error
	// GetLot returns the lot with id or an error wrapping shared.ErrNotFound.
	GetLot(ctx context.Context, id int64) (Lot, error)
}

// Ledger applies signed quantity effects to stock balances. It never decides
// whether a document may post; callers hold the document lock and transition
// its status within the same transaction.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: func() time.Time { return time.Now().UTC() }}
}

// EffectsFor translates one movement line into ledger effects, validating the
// location requirements of its type.
func EffectsFor(line LineSpec, ref DocRef) ([]Effect, error) {
	if line.ProductID == 0 {
		return nil, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if line.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}
	key := func(location int64) BalanceKey {
		return BalanceKey{ProductID: line.ProductID, VariantID: line.VariantID, LocationID: location, LotID: line.LotID}
	}
	switch line.Type {
	case MovementReceive:
		if line.ToLocationID == 0 || line.FromLocationID != 0 {
			return nil, fmt.Errorf("%w: RECEIVE needs only a destination location", shared.ErrValidation)
		}
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: RECEIVE quantity must be positive", shared.ErrValidation)
		}
		return []Effect{{Key: key(line.ToLocationID), Delta: line.Qty, UnitCost: line.UnitCost, Ref: ref}}, nil
	case MovementIssue:
		if line.FromLocationID == 0 || line.ToLocationID != 0 {
			return nil, fmt.Errorf("%w: ISSUE needs only a source location", shared.ErrValidation)
		}
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: ISSUE quantity must be positive", shared.ErrValidation)
		}
		return []Effect{{Key: key(line.FromLocationID), Delta: line.Qty.Neg(), Ref: ref}}, nil
	case MovementTransfer:
		if line.FromLocationID == 0 || line.ToLocationID == 0 {
			return nil, fmt.Errorf("%w: TRANSFER needs source and destination locations", shared.ErrValidation)
		}
		if line.FromLocationID == line.ToLocationID {
			return nil, fmt.Errorf("%w: TRANSFER source and destination must differ", shared.ErrValidation)
		}
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: TRANSFER quantity must be positive", shared.ErrValidation)
		}
		return []Effect{
			{Key: key(line.FromLocationID), Delta: line.Qty.Neg(), Ref: ref},
			{Key: key(line.ToLocationID), Delta: line.Qty, UnitCost: line.UnitCost, CostFrom: key(line.FromLocationID), Ref: ref},
		}, nil
	case MovementAdjust:
		if line.ToLocationID == 0 || line.FromLocationID != 0 {
			return nil, fmt.Errorf("%w: ADJUST needs only a destination location", shared.ErrValidation)
		}
		if line.Qty.IsZero() {
			return nil, fmt.Errorf("%w: ADJUST quantity must not be zero", shared.ErrValidation)
		}
		effect := Effect{Key: key(line.ToLocationID), Delta: line.Qty, Ref: ref}
		if line.Qty.IsPositive() {
			effect.UnitCost = line.UnitCost
		}
		return []Effect{effect}, nil
	default:
		return nil, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, line.Type)
	}
}

// Apply performs every effect inside tx. Rows are locked in key order before
// any write so that concurrent multi-key postings cannot deadlock. Effects
// are netted per key before the stock check: a key whose net decrement would
// leave the row negative fails with shared.ErrInsufficientStock unless policy
// allows it, and the caller's transaction must then roll back. Card entries
// are still written one per effect.
func (l *Ledger) Apply(ctx context.Context, tx LedgerTx, effects []Effect, policy Policy) ([]CardEntry, error) {
	if len(effects) == 0 {
		return nil, fmt.Errorf("%w: no ledger effects", shared.ErrValidation)
	}
	for _, e := range effects {
		if e.Key.ProductID == 0 || e.Key.LocationID == 0 {
			return nil, fmt.Errorf("%w: product and location required", shared.ErrValidation)
		}
		if e.Delta.IsZero() {
			return nil, fmt.Errorf("%w: zero quantity effect on %s", shared.ErrValidation, e.Key)
		}
	}

	if err := checkLots(ctx, tx, effects); err != nil {
		return nil, err
	}

	balances, err := lockKeys(ctx, tx, effects)
	if err != nil {
		return nil, err
	}

	opening := make(map[BalanceKey]decimal.Decimal, len(balances))
	for key, bal := range balances {
		opening[key] = bal.AvgCost
	}
	if !policy.AllowNegative {
		if err := checkNet(balances, effects); err != nil {
			return nil, err
		}
	}

	now := l.now()
	entries := make([]CardEntry, 0, len(effects))
	for _, e := range effects {
		bal := balances[e.Key]
		newQty := bal.QtyOnHand.Add(e.Delta)
		entry := CardEntry{Key: e.Key, Ref: e.Ref, PostedAt: now}
		if e.Delta.IsPositive() {
			unitCost := e.UnitCost
			if unitCost.IsZero() {
				if cost, ok := opening[e.CostFrom]; ok {
					unitCost = cost
				} else {
					unitCost = bal.AvgCost
				}
			}
			bal.AvgCost = WeightedAverageCost(bal.QtyOnHand, bal.AvgCost, e.Delta, unitCost)
			entry.QtyIn = e.Delta
			entry.UnitCost = unitCost
		} else {
			entry.QtyOut = e.Delta.Neg()
			entry.UnitCost = bal.AvgCost
			if !newQty.IsPositive() {
				bal.AvgCost = decimal.Zero
			}
		}
		bal.QtyOnHand = newQty
		bal.UpdatedAt = now
		balances[e.Key] = bal
		entry.BalanceQty = newQty
		entry.AvgCost = bal.AvgCost
		entries = append(entries, entry)
	}

	for _, key := range sortedKeys(balances) {
		if err := tx.SaveBalance(ctx, balances[key]); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		if err := tx.InsertCardEntry(ctx, entry); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Reserve earmarks qty on the row for key. Reservations never exceed the
// quantity on hand at the time they are made.
func (l *Ledger) Reserve(ctx context.Context, tx LedgerTx, key BalanceKey, qty decimal.Decimal) (Balance, error) {
	if !qty.IsPositive() {
		return Balance{}, fmt.Errorf("%w: reservation quantity must be positive", shared.ErrValidation)
	}
	bal, err := tx.LockBalance(ctx, key)
	if err != nil {
		return Balance{}, err
	}
	if bal.QtyReserved.Add(qty).GreaterThan(bal.QtyOnHand) {
		return Balance{}, fmt.Errorf("%w: %s available %s, requested %s",
			shared.ErrInsufficientStock, key, bal.Available().String(), qty.String())
	}
	bal.QtyReserved = bal.QtyReserved.Add(qty)
	bal.UpdatedAt = l.now()
	if err := tx.SaveBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Release returns previously reserved quantity.
func (l *Ledger) Release(ctx context.Context, tx LedgerTx, key BalanceKey, qty decimal.Decimal) (Balance, error) {
	if !qty.IsPositive() {
		return Balance{}, fmt.Errorf("%w: release quantity must be positive", shared.ErrValidation)
	}
	bal, err := tx.LockBalance(ctx, key)
	if err != nil {
		return Balance{}, err
	}
	if qty.GreaterThan(bal.QtyReserved) {
		return Balance{}, fmt.Errorf("%w: release %s exceeds reserved %s", shared.ErrValidation, qty.String(), bal.QtyReserved.String())
	}
	bal.QtyReserved = bal.QtyReserved.Sub(qty)
	bal.UpdatedAt = l.now()
	if err := tx.SaveBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// CheckLotOwner verifies that lotID names a lot of (productID, variantID).
// A zero lotID always passes.
func CheckLotOwner(ctx context.Context, tx LedgerTx, productID, variantID, lotID int64) error {
	if lotID == 0 {
		return nil
	}
	lot, err := tx.GetLot(ctx, lotID)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: unknown lot %d", shared.ErrValidation, lotID)
	}
	if err != nil {
		return err
	}
	if lot.ProductID != productID || lot.VariantID != variantID {
		return fmt.Errorf("%w: lot %s belongs to product=%d variant=%d, not product=%d variant=%d",
			shared.ErrValidation, lot.LotNumber, lot.ProductID, lot.VariantID, productID, variantID)
	}
	return nil
}

func checkLots(ctx context.Context, tx LedgerTx, effects []Effect) error {
	seen := make(map[BalanceKey]bool)
	for _, e := range effects {
		owner := BalanceKey{ProductID: e.Key.ProductID, VariantID: e.Key.VariantID, LotID: e.Key.LotID}
		if seen[owner] {
			continue
		}
		if err := CheckLotOwner(ctx, tx, owner.ProductID, owner.VariantID, owner.LotID); err != nil {
			return err
		}
		seen[owner] = true
	}
	return nil
}

// checkNet rejects any key whose summed delta is a decrement that the opening
// quantity cannot cover.
func checkNet(balances map[BalanceKey]Balance, effects []Effect) error {
	net := make(map[BalanceKey]decimal.Decimal, len(balances))
	for _, e := range effects {
		net[e.Key] = net[e.Key].Add(e.Delta)
	}
	for _, key := range sortedKeys(balances) {
		delta, ok := net[key]
		if !ok || !delta.IsNegative() {
			continue
		}
		onHand := balances[key].QtyOnHand
		if onHand.Add(delta).IsNegative() {
			return fmt.Errorf("%w: %s on hand %s, requested %s",
				shared.ErrInsufficientStock, key, onHand.String(), delta.Neg().String())
		}
	}
	return nil
}

func lockKeys(ctx context.Context, tx LedgerTx, effects []Effect) (map[BalanceKey]Balance, error) {
	balances := make(map[BalanceKey]Balance, len(effects))
	for _, e := range effects {
		balances[e.Key] = Balance{}
	}
	for _, e := range effects {
		if e.CostFrom != (BalanceKey{}) {
			balances[e.CostFrom] = Balance{}
		}
	}
	for _, key := range sortedKeys(balances) {
		bal, err := tx.LockBalance(ctx, key)
		if err != nil {
			return nil, err
		}
		bal.Key = key
		balances[key] = bal
	}
	return balances, nil
}

func sortedKeys(balances map[BalanceKey]Balance) []BalanceKey {
	keys := make([]BalanceKey, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
