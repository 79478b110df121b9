package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

const (
	// ActionCreate is recorded when a stock take is created.
	ActionCreate = "create"
	// ActionCount is recorded for every batch of counts.
	ActionCount = "count"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockTake(ctx context.Context, id int64) (StockTake, error)
	ListStockTakes(ctx context.Context, filter ListFilter) ([]StockTake, error)
}

// TxRepository exposes transactional operations. It is a movement
// transaction as well, so approval posts its adjustment atomically.
type TxRepository interface {
	movement.TxRepository
	CreateStockTake(ctx context.Context, st StockTake) (StockTake, error)
	// LockStockTake loads the stock take with its lines, locked for update.
	LockStockTake(ctx context.Context, id int64) (StockTake, error)
	// SaveHeader writes status, timestamps and adjustment reference.
	SaveHeader(ctx context.Context, st StockTake) error
	ReplaceLines(ctx context.Context, stockTakeID int64, lines []Line) ([]Line, error)
	AddLine(ctx context.Context, line Line) (Line, error)
	SaveCounts(ctx context.Context, lines []Line) error
	// WarehouseBalances returns every non-zero balance held at locations of
	// the warehouse, locked for share.
	WarehouseBalances(ctx context.Context, warehouseID int64) ([]inventory.Balance, error)
}

// Service drives stock takes.
type Service struct {
	repo      RepositoryPort
	catalog   masterdata.Catalog
	movements *movement.Service
	sequencer *sequence.Sequencer
	notifier  shared.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, movements *movement.Service, seq *sequence.Sequencer, notifier shared.Notifier, logger *slog.Logger) *Service {
	if seq == nil {
		seq = sequence.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		movements: movements,
		sequencer: seq,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a stock take with lines.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (StockTake, error) {
	if !actor.Can(shared.PermInventoryView) {
		return StockTake{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermInventoryView)
	}
	return s.repo.GetStockTake(ctx, id)
}

// List returns stock take headers.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]StockTake, error) {
	if !actor.Can(shared.PermInventoryView) {
		return nil, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermInventoryView)
	}
	return s.repo.ListStockTakes(ctx, filter)
}

// Create opens a DRAFT stock take for an active warehouse.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (StockTake, error) {
	if !actor.Can(shared.PermStockTakeCreate) {
		return StockTake{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermStockTakeCreate)
	}
	if input.WarehouseID == 0 {
		return StockTake{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	if s.catalog != nil {
		wh, err := s.catalog.GetWarehouse(ctx, input.WarehouseID)
		if err != nil {
			return StockTake{}, fmt.Errorf("warehouse %d: %w", input.WarehouseID, err)
		}
		if !wh.IsActive {
			return StockTake{}, fmt.Errorf("%w: warehouse %s is inactive", shared.ErrValidation, wh.Code)
		}
	}
	var created StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.sequencer.Next(ctx, tx, shared.DocStockTake)
		if err != nil {
			return err
		}
		now := s.now()
		created, err = tx.CreateStockTake(ctx, StockTake{
			Number:      number,
			WarehouseID: input.WarehouseID,
			Status:      StatusDraft,
			Note:        strings.TrimSpace(input.Note),
			CreatedBy:   actor.ID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, shared.DocumentEvent{
			ActorID:    actor.ID,
			Action:     ActionCreate,
			DocType:    shared.DocStockTake,
			DocID:      created.ID,
			DocNumber:  created.Number,
			ToStatus:   string(StatusDraft),
			OccurredAt: now,
		})
	})
	return created, err
}

// Start snapshots the warehouse balances as system quantities and opens
// counting.
func (s *Service) Start(ctx context.Context, actor shared.Actor, id int64) (StockTake, error) {
	st, err := s.transition(ctx, actor, id, workflow.ActionStart, "", func(ctx context.Context, tx TxRepository, st *StockTake, now time.Time) error {
		balances, err := tx.WarehouseBalances(ctx, st.WarehouseID)
		if err != nil {
			return err
		}
		lines := make([]Line, 0, len(balances))
		for _, b := range balances {
			lines = append(lines, Line{
				ProductID:  b.Key.ProductID,
				VariantID:  b.Key.VariantID,
				LocationID: b.Key.LocationID,
				LotID:      b.Key.LotID,
				SystemQty:  b.QtyOnHand,
				UnitCost:   b.AvgCost,
			})
		}
		st.Lines, err = tx.ReplaceLines(ctx, st.ID, lines)
		st.StartedAt = &now
		return err
	})
	return st, err
}

// RecordCounts stores counted quantities on an IN_PROGRESS stock take.
// Counting the same line again overwrites the previous count.
func (s *Service) RecordCounts(ctx context.Context, actor shared.Actor, id int64, counts []Count) (StockTake, error) {
	if !actor.Can(shared.PermStockTakeCount) {
		return StockTake{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermStockTakeCount)
	}
	if len(counts) == 0 {
		return StockTake{}, fmt.Errorf("%w: at least one count required", shared.ErrValidation)
	}
	for i, c := range counts {
		if c.Qty.IsNegative() {
			return StockTake{}, fmt.Errorf("%w: count %d must not be negative", shared.ErrValidation, i+1)
		}
		if c.LineID == 0 && (c.ProductID == 0 || c.LocationID == 0) {
			return StockTake{}, fmt.Errorf("%w: count %d needs a line or a product and location", shared.ErrValidation, i+1)
		}
	}
	var result StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.LockStockTake(ctx, id)
		if err != nil {
			return err
		}
		if st.Status != StatusInProgress {
			return fmt.Errorf("%w: %s is %s; counts need %s", shared.ErrInvalidTransition, st.Number, st.Status, StatusInProgress)
		}
		var changed []Line
		for i, c := range counts {
			idx, err := s.lineFor(ctx, tx, &st, c)
			if err != nil {
				return fmt.Errorf("count %d: %w", i+1, err)
			}
			st.Lines[idx].CountedQty = c.Qty
			st.Lines[idx].Counted = true
			changed = append(changed, st.Lines[idx])
		}
		if err := tx.SaveCounts(ctx, changed); err != nil {
			return err
		}
		result = st
		return tx.AppendEvent(ctx, shared.DocumentEvent{
			ActorID:    actor.ID,
			Action:     ActionCount,
			DocType:    shared.DocStockTake,
			DocID:      st.ID,
			DocNumber:  st.Number,
			FromStatus: string(st.Status),
			ToStatus:   string(st.Status),
			OccurredAt: s.now(),
		})
	})
	return result, err
}

// lineFor returns the index of the line a count addresses, adding a
// zero-system line for stock found outside the snapshot.
func (s *Service) lineFor(ctx context.Context, tx TxRepository, st *StockTake, c Count) (int, error) {
	for i, line := range st.Lines {
		if c.LineID != 0 && line.ID == c.LineID {
			return i, nil
		}
		if c.LineID == 0 && line.sameItem(c) {
			return i, nil
		}
	}
	if c.LineID != 0 {
		return 0, fmt.Errorf("%w: line %d is not on %s", shared.ErrValidation, c.LineID, st.Number)
	}
	if s.catalog != nil {
		if _, err := masterdata.ResolveStockable(ctx, s.catalog, c.ProductID, c.VariantID); err != nil {
			return 0, err
		}
		loc, err := masterdata.ResolveLocation(ctx, s.catalog, c.LocationID)
		if err != nil {
			return 0, err
		}
		if loc.WarehouseID != st.WarehouseID {
			return 0, fmt.Errorf("%w: location %s is outside the counted warehouse", shared.ErrValidation, loc.Code)
		}
	}
	line, err := tx.AddLine(ctx, Line{
		StockTakeID: st.ID,
		ProductID:   c.ProductID,
		VariantID:   c.VariantID,
		LocationID:  c.LocationID,
		LotID:       c.LotID,
	})
	if err != nil {
		return 0, err
	}
	st.Lines = append(st.Lines, line)
	return len(st.Lines) - 1, nil
}

// Complete closes counting. Every line must have been counted.
func (s *Service) Complete(ctx context.Context, actor shared.Actor, id int64) (StockTake, error) {
	st, err := s.transition(ctx, actor, id, workflow.ActionComplete, "", func(_ context.Context, _ TxRepository, st *StockTake, now time.Time) error {
		uncounted := 0
		for _, line := range st.Lines {
			if !line.Counted {
				uncounted++
			}
		}
		if uncounted > 0 {
			return fmt.Errorf("%w: %s has %d uncounted lines", shared.ErrValidation, st.Number, uncounted)
		}
		st.CompletedAt = &now
		return nil
	})
	return st, err
}

// Recount reopens a completed stock take for counting.
func (s *Service) Recount(ctx context.Context, actor shared.Actor, id int64) (StockTake, error) {
	st, err := s.transition(ctx, actor, id, workflow.ActionRecount, "", func(_ context.Context, _ TxRepository, st *StockTake, _ time.Time) error {
		st.CompletedAt = nil
		return nil
	})
	return st, err
}

// Cancel abandons a stock take that has not been approved.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, reason string) (StockTake, error) {
	st, err := s.transition(ctx, actor, id, workflow.ActionCancel, reason, func(context.Context, TxRepository, *StockTake, time.Time) error {
		if strings.TrimSpace(reason) == "" {
			return fmt.Errorf("%w: cancel requires a reason", shared.ErrValidation)
		}
		return nil
	})
	return st, err
}

// Approve applies every non-zero variance as one POSTED ADJUST movement
// numbered from the adjustment sequence, in the same bulk transaction as
// the approval. A count with no variance approves without a movement.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (StockTake, error) {
	if s.movements == nil {
		return StockTake{}, fmt.Errorf("%w: stock take approval needs the movement service", shared.ErrMisconfigured)
	}
	var entries []inventory.CardEntry
	st, err := s.transition(db.WithBulk(ctx), actor, id, workflow.ActionApprove, "", func(ctx context.Context, tx TxRepository, st *StockTake, now time.Time) error {
		var lines []movement.Line
		for _, line := range st.Lines {
			variance := line.Variance()
			if variance.IsZero() {
				continue
			}
			lines = append(lines, movement.Line{
				ProductID:    line.ProductID,
				VariantID:    line.VariantID,
				LotID:        line.LotID,
				ToLocationID: line.LocationID,
				Qty:          variance,
				UnitCost:     line.UnitCost,
				Note:         "count variance",
			})
		}
		st.ApprovedAt = &now
		if len(lines) == 0 {
			return nil
		}
		poster := shared.SystemActor(actor.ID, shared.MovementPostingScopes()...)
		adj, posted, err := s.movements.CreatePostedTx(ctx, tx, poster, movement.CreateInput{
			Type:       inventory.MovementAdjust,
			Note:       "stock take " + st.Number,
			RefDocType: shared.DocStockTake,
			RefDocID:   st.ID,
			Lines:      lines,
		}, shared.DocAdjustment)
		if err != nil {
			return err
		}
		st.AdjustmentID = adj.ID
		entries = posted
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	s.movements.LowStockAfter(ctx, entries)
	return st, nil
}

type mutateFunc func(ctx context.Context, tx TxRepository, st *StockTake, now time.Time) error

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, action workflow.Action, reason string, mutate mutateFunc) (StockTake, error) {
	var result StockTake
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.LockStockTake(ctx, id)
		if err != nil {
			return err
		}
		to, err := Machine.Fire(actor, st.Status, action)
		if err != nil {
			return fmt.Errorf("%s: %w", st.Number, err)
		}
		now := s.now()
		from := st.Status
		if mutate != nil {
			if err := mutate(ctx, tx, &st, now); err != nil {
				return err
			}
		}
		st.Status = to
		if err := tx.SaveHeader(ctx, st); err != nil {
			return err
		}
		event := shared.DocumentEvent{
			ActorID:    actor.ID,
			Action:     string(action),
			DocType:    shared.DocStockTake,
			DocID:      st.ID,
			DocNumber:  st.Number,
			FromStatus: string(from),
			ToStatus:   string(to),
			Reason:     strings.TrimSpace(reason),
			OccurredAt: now,
		}
		if st.AdjustmentID != 0 && action == workflow.ActionApprove {
			event.RelatedDocType = shared.DocStockMovement
			event.RelatedDocID = st.AdjustmentID
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return StockTake{}, err
	}
	s.afterCommit(ctx, result, action)
	return result, nil
}

func (s *Service) afterCommit(ctx context.Context, st StockTake, action workflow.Action) {
	var event shared.EventType
	var roles []string
	switch action {
	case workflow.ActionComplete:
		event, roles = shared.EventStockTakeCompleted, []string{"warehouse_supervisor"}
	case workflow.ActionApprove:
		event, roles = shared.EventStockTakeApproved, []string{"warehouse", "finance"}
	default:
		return
	}
	payload := map[string]string{
		"warehouse_id": strconv.FormatInt(st.WarehouseID, 10),
		"lines":        strconv.Itoa(len(st.Lines)),
	}
	if st.AdjustmentID != 0 {
		payload["adjustment_id"] = strconv.FormatInt(st.AdjustmentID, 10)
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, []shared.Event{{
		Type:           event,
		DocType:        shared.DocStockTake,
		DocID:          st.ID,
		DocNumber:      st.Number,
		RecipientRoles: roles,
		Payload:        payload,
		OccurredAt:     s.now(),
	}})
}
