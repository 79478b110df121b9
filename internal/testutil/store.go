// Package testutil provides in-memory stand-ins for the transactional stores
// so services can be exercised without PostgreSQL.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type lotKey struct {
	productID int64
	variantID int64
	number    string
}

// Store is an in-memory ledger, lot, sequence and event store. RunTx
// serialises transactions and discards their writes when they fail, which
// matches the outcome of row locks plus rollback in PostgreSQL.
type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	nextID   int64
	seqs     map[shared.DocType]sequence.Sequence
	balances map[inventory.BalanceKey]inventory.Balance
	cards    []inventory.CardEntry
	lots     map[lotKey]inventory.Lot
	events   []shared.DocumentEvent
	keys     map[string]string
}

// NewStore returns an empty store. Sequences are seeded lazily by the
// sequencer.
func NewStore() *Store {
	return &Store{
		seqs:     make(map[shared.DocType]sequence.Sequence),
		balances: make(map[inventory.BalanceKey]inventory.Balance),
		lots:     make(map[lotKey]inventory.Lot),
		keys:     make(map[string]string),
	}
}

type snapshot struct {
	nextID   int64
	seqs     map[shared.DocType]sequence.Sequence
	balances map[inventory.BalanceKey]inventory.Balance
	cards    []inventory.CardEntry
	lots     map[lotKey]inventory.Lot
	events   []shared.DocumentEvent
	keys     map[string]string
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		nextID:   s.nextID,
		seqs:     maps.Clone(s.seqs),
		balances: maps.Clone(s.balances),
		cards:    slices.Clone(s.cards),
		lots:     maps.Clone(s.lots),
		events:   slices.Clone(s.events),
		keys:     maps.Clone(s.keys),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.seqs = snap.seqs
	s.balances = snap.balances
	s.cards = snap.cards
	s.lots = snap.lots
	s.events = snap.events
	s.keys = snap.keys
}

// RunTx runs fn as one transaction. Writes made through the store are undone
// when fn returns an error.
func (s *Store) RunTx(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// NextID hands out ids shared by every record kind.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// Increment implements sequence.Store.
func (s *Store) Increment(_ context.Context, docType shared.DocType) (sequence.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[docType]
	if !ok {
		return sequence.Sequence{}, fmt.Errorf("%w: sequence %s", shared.ErrNotFound, docType)
	}
	seq.CurrentNo++
	s.seqs[docType] = seq
	return seq, nil
}

// Seed implements sequence.Store.
func (s *Store) Seed(_ context.Context, seq sequence.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seqs[seq.DocType]; !ok {
		s.seqs[seq.DocType] = seq
	}
	return nil
}

// LockBalance implements inventory.LedgerTx.
func (s *Store) LockBalance(_ context.Context, key inventory.BalanceKey) (inventory.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[key]
	if !ok {
		s.nextID++
		bal = inventory.Balance{ID: s.nextID, Key: key}
		s.balances[key] = bal
	}
	return bal, nil
}

// SaveBalance implements inventory.LedgerTx.
func (s *Store) SaveBalance(_ context.Context, balance inventory.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.balances[balance.Key]
	if !ok || current.ID != balance.ID {
		return fmt.Errorf("%w: balance %d", shared.ErrNotFound, balance.ID)
	}
	s.balances[balance.Key] = balance
	return nil
}

// InsertCardEntry implements inventory.LedgerTx.
func (s *Store) InsertCardEntry(_ context.Context, entry inventory.CardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.cards = append(s.cards, entry)
	return nil
}

// EnsureLot implements inventory.LotTx.
func (s *Store) EnsureLot(_ context.Context, lot inventory.Lot) (inventory.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := lotKey{productID: lot.ProductID, variantID: lot.VariantID, number: lot.LotNumber}
	if existing, ok := s.lots[k]; ok {
		return existing, nil
	}
	s.nextID++
	lot.ID = s.nextID
	lot.ReceivedQty = decimal.Zero
	s.lots[k] = lot
	return lot, nil
}

// GetLot implements inventory.LedgerTx.
func (s *Store) GetLot(_ context.Context, id int64) (inventory.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lot := range s.lots {
		if lot.ID == id {
			return lot, nil
		}
	}
	return inventory.Lot{}, fmt.Errorf("%w: lot %d", shared.ErrNotFound, id)
}

// AddLotReceived implements inventory.LotTx.
func (s *Store) AddLotReceived(_ context.Context, lotID int64, qty decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, lot := range s.lots {
		if lot.ID == lotID {
			lot.ReceivedQty = lot.ReceivedQty.Add(qty)
			s.lots[k] = lot
			return nil
		}
	}
	return fmt.Errorf("%w: lot %d", shared.ErrNotFound, lotID)
}

// ClaimIdempotencyKey implements movement.TxRepository. A failed RunTx
// releases the claim with the rest of its writes.
func (s *Store) ClaimIdempotencyKey(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return fmt.Errorf("%w: idempotency key and module required", shared.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return fmt.Errorf("%w: %s", shared.ErrIdempotencyConflict, key)
	}
	s.keys[key] = module
	return nil
}

// ClaimedKeys returns every claimed idempotency key with its module.
func (s *Store) ClaimedKeys() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.keys)
}

// AppendEvent implements shared.EventLog.
func (s *Store) AppendEvent(_ context.Context, event shared.DocumentEvent) error {
	if err := shared.ValidateEvent(event); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	s.events = append(s.events, event)
	return nil
}

// SetBalance seeds on-hand quantity and average cost for key.
func (s *Store) SetBalance(key inventory.BalanceKey, qty, avgCost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[key]
	if !ok {
		s.nextID++
		bal = inventory.Balance{ID: s.nextID, Key: key}
	}
	bal.QtyOnHand = qty
	bal.AvgCost = avgCost
	s.balances[key] = bal
}

// Balance returns the row for key, zero when absent.
func (s *Store) Balance(key inventory.BalanceKey) inventory.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[key]
	if !ok {
		return inventory.Balance{Key: key, QtyOnHand: decimal.Zero, QtyReserved: decimal.Zero, AvgCost: decimal.Zero}
	}
	return bal
}

// Balances returns every row ordered by key.
func (s *Store) Balances() []inventory.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Balance, 0, len(s.balances))
	for _, bal := range s.balances {
		out = append(out, bal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// Cards returns every stock card entry in insertion order.
func (s *Store) Cards() []inventory.CardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cards)
}

// Lots returns every lot ordered by id.
func (s *Store) Lots() []inventory.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.lots))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Events returns the document event log in append order.
func (s *Store) Events() []shared.DocumentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// EventsFor returns the events recorded for one document.
func (s *Store) EventsFor(docType shared.DocType, docID int64) []shared.DocumentEvent {
	var out []shared.DocumentEvent
	for _, e := range s.Events() {
		if e.DocType == docType && e.DocID == docID {
			out = append(out, e)
		}
	}
	return out
}

// OnHand sums on-hand quantity for a product across all keys.
func (s *Store) OnHand(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, bal := range s.Balances() {
		if bal.Key.ProductID == productID {
			total = total.Add(bal.QtyOnHand)
		}
	}
	return total
}
