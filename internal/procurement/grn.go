package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// GetGRN returns a goods receipt.
func (s *Service) GetGRN(ctx context.Context, actor shared.Actor, id int64) (GoodsReceipt, error) {
	if err := authorizeView(actor); err != nil {
		return GoodsReceipt{}, err
	}
	return s.repo.GetGRN(ctx, id)
}

// ListGRNs returns goods receipts.
func (s *Service) ListGRNs(ctx context.Context, actor shared.Actor, filter ListFilter) ([]GoodsReceipt, error) {
	if err := authorizeView(actor); err != nil {
		return nil, err
	}
	return s.repo.ListGRNs(ctx, filter)
}

// CreateGoodsReceipt stores a DRAFT GRN against a sent PO. Quantities are
// checked against what is still outstanding now; posting checks again.
func (s *Service) CreateGoodsReceipt(ctx context.Context, actor shared.Actor, input CreateGRNInput) (GoodsReceipt, error) {
	if err := authorize(actor, shared.PermGRNCreate); err != nil {
		return GoodsReceipt{}, err
	}
	if input.POID == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: purchase order required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: goods receipt needs at least one line", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return GoodsReceipt{}, fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if line.UnitCost.IsNegative() {
			return GoodsReceipt{}, fmt.Errorf("%w: line %d unit cost must not be negative", shared.ErrValidation, i+1)
		}
		if line.ExpiryDate != nil && line.ManufacturedDate != nil && line.ExpiryDate.Before(*line.ManufacturedDate) {
			return GoodsReceipt{}, fmt.Errorf("%w: line %d expires before it was manufactured", shared.ErrValidation, i+1)
		}
		if line.LocationID == 0 {
			return GoodsReceipt{}, fmt.Errorf("%w: line %d location required", shared.ErrValidation, i+1)
		}
		if s.catalog != nil {
			if _, err := masterdata.ResolveLocation(ctx, s.catalog, line.LocationID); err != nil {
				return GoodsReceipt{}, fmt.Errorf("line %d: %w", i+1, err)
			}
		}
	}
	var created GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if !Receivable(po.Status) {
			return fmt.Errorf("%w: %s is %s and cannot be received", shared.ErrInvalidTransition, po.Number, po.Status)
		}
		poLines := indexPOLines(po.Lines)
		incoming := make(map[int64]decimal.Decimal)
		lines := make([]GRNLine, 0, len(input.Lines))
		for i, in := range input.Lines {
			pl, ok := poLines[in.POLineID]
			if !ok {
				return fmt.Errorf("%w: line %d: PO line %d is not on %s", shared.ErrValidation, i+1, in.POLineID, po.Number)
			}
			if err := s.checkItem(ctx, pl.ProductID, pl.VariantID); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			incoming[pl.ID] = incoming[pl.ID].Add(in.Qty)
			cost := in.UnitCost
			if cost.IsZero() {
				cost = pl.UnitPrice
			}
			lines = append(lines, GRNLine{
				POLineID:         pl.ID,
				ProductID:        pl.ProductID,
				VariantID:        pl.VariantID,
				LocationID:       in.LocationID,
				Qty:              in.Qty,
				UnitCost:         cost,
				LotNumber:        inventory.NormalizeLotNumber(in.LotNumber),
				ExpiryDate:       in.ExpiryDate,
				ManufacturedDate: in.ManufacturedDate,
			})
		}
		if err := checkOverReceipt(po, poLines, incoming); err != nil {
			return err
		}
		number, err := s.sequencer.Next(ctx, tx, shared.DocGoodsReceipt)
		if err != nil {
			return err
		}
		now := s.now()
		receivedAt := input.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = now
		}
		created, err = tx.CreateGRN(ctx, GoodsReceipt{
			Number:     number,
			POID:       po.ID,
			Status:     GRNStatusDraft,
			ReceivedAt: receivedAt,
			Note:       strings.TrimSpace(input.Note),
			CreatedBy:  actor.ID,
			CreatedAt:  now,
			Lines:      lines,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, shared.DocumentEvent{
			ActorID:        actor.ID,
			Action:         ActionCreate,
			DocType:        shared.DocGoodsReceipt,
			DocID:          created.ID,
			DocNumber:      created.Number,
			ToStatus:       string(GRNStatusDraft),
			RelatedDocType: shared.DocPurchaseOrder,
			RelatedDocID:   po.ID,
			OccurredAt:     now,
		})
	})
	return created, err
}

// CancelGoodsReceipt cancels a draft GRN.
func (s *Service) CancelGoodsReceipt(ctx context.Context, actor shared.Actor, id int64, reason string) (GoodsReceipt, error) {
	var result GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn, err := tx.LockGRN(ctx, id)
		if err != nil {
			return err
		}
		to, err := GRNMachine.Fire(actor, grn.Status, workflow.ActionCancel)
		if err != nil {
			return fmt.Errorf("%s: %w", grn.Number, err)
		}
		if err := requireReason(workflow.ActionCancel, reason); err != nil {
			return err
		}
		if err := tx.UpdateGRNStatus(ctx, grn.ID, to, nil); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, transitionEvent(actor, workflow.ActionCancel, shared.DocGoodsReceipt, grn.ID, grn.Number, string(grn.Status), string(to), reason, s.now())); err != nil {
			return err
		}
		grn.Status = to
		result = grn
		return nil
	})
	return result, err
}

// receiptOutcome carries what a committed posting needs to announce.
type receiptOutcome struct {
	grn     GoodsReceipt
	po      PurchaseOrder
	poMoved bool
	entries []inventory.CardEntry
}

// PostGoodsReceipt posts a draft GRN. In one transaction it records lots,
// increments stock at each line location, accumulates PO line receipts,
// derives the PO status and refreshes product last costs. Receiving more
// than is outstanding on any PO line rejects the whole receipt.
func (s *Service) PostGoodsReceipt(ctx context.Context, actor shared.Actor, id int64) (GoodsReceipt, error) {
	var out receiptOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.postReceipt(ctx, tx, actor, id)
		return err
	})
	shared.ObservePosting(s.observer, shared.DocGoodsReceipt, err)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.afterReceipt(ctx, out)
	return out.grn, nil
}

func (s *Service) postReceipt(ctx context.Context, tx TxRepository, actor shared.Actor, id int64) (receiptOutcome, error) {
	grn, err := tx.LockGRN(ctx, id)
	if err != nil {
		return receiptOutcome{}, err
	}
	to, err := GRNMachine.Fire(actor, grn.Status, workflow.ActionPost)
	if err != nil {
		return receiptOutcome{}, fmt.Errorf("%s: %w", grn.Number, err)
	}
	po, err := tx.LockPO(ctx, grn.POID)
	if err != nil {
		return receiptOutcome{}, err
	}
	if !Receivable(po.Status) {
		return receiptOutcome{}, fmt.Errorf("%w: %s is %s and cannot be received", shared.ErrInvalidTransition, po.Number, po.Status)
	}
	poLines := indexPOLines(po.Lines)
	incoming := make(map[int64]decimal.Decimal)
	for i, line := range grn.Lines {
		if _, ok := poLines[line.POLineID]; !ok {
			return receiptOutcome{}, fmt.Errorf("%w: line %d: PO line %d is not on %s", shared.ErrValidation, i+1, line.POLineID, po.Number)
		}
		if err := s.checkItem(ctx, line.ProductID, line.VariantID); err != nil {
			return receiptOutcome{}, fmt.Errorf("%s line %d: %w", grn.Number, i+1, err)
		}
		incoming[line.POLineID] = incoming[line.POLineID].Add(line.Qty)
	}
	if err := checkOverReceipt(po, poLines, incoming); err != nil {
		return receiptOutcome{}, fmt.Errorf("%s: %w", grn.Number, err)
	}

	ref := inventory.DocRef{DocType: shared.DocGoodsReceipt, DocID: grn.ID, DocNumber: grn.Number}
	var effects []inventory.Effect
	lastCost := make(map[int64]decimal.Decimal)
	var receipts []inventory.LotReceipt
	var receiptLine []int
	for i, line := range grn.Lines {
		if line.LotNumber == "" {
			continue
		}
		receipts = append(receipts, inventory.LotReceipt{
			ProductID:        line.ProductID,
			VariantID:        line.VariantID,
			LotNumber:        line.LotNumber,
			Qty:              line.Qty,
			ExpiryDate:       line.ExpiryDate,
			ManufacturedDate: line.ManufacturedDate,
			ReceivedAt:       grn.ReceivedAt,
		})
		receiptLine = append(receiptLine, i)
	}
	for _, r := range inventory.LockOrder(receipts) {
		i := receiptLine[r]
		lot, err := inventory.ReceiveLot(ctx, tx, receipts[r])
		if err != nil {
			return receiptOutcome{}, fmt.Errorf("%s line %d: %w", grn.Number, i+1, err)
		}
		if err := tx.SetGRNLineLot(ctx, grn.Lines[i].ID, lot.ID); err != nil {
			return receiptOutcome{}, err
		}
		grn.Lines[i].LotID = lot.ID
	}
	for i, line := range grn.Lines {
		lineEffects, err := inventory.EffectsFor(inventory.LineSpec{
			Type:         inventory.MovementReceive,
			ProductID:    line.ProductID,
			VariantID:    line.VariantID,
			LotID:        grn.Lines[i].LotID,
			ToLocationID: line.LocationID,
			Qty:          line.Qty,
			UnitCost:     line.UnitCost,
		}, ref)
		if err != nil {
			return receiptOutcome{}, fmt.Errorf("%s line %d: %w", grn.Number, i+1, err)
		}
		effects = append(effects, lineEffects...)
		if line.UnitCost.IsPositive() {
			lastCost[line.ProductID] = line.UnitCost
		}
	}
	entries, err := s.ledger().Apply(ctx, tx, effects, s.policy())
	if err != nil {
		return receiptOutcome{}, fmt.Errorf("%s: %w", grn.Number, err)
	}

	for lineID, qty := range incoming {
		if err := tx.AddPOLineReceived(ctx, lineID, qty); err != nil {
			return receiptOutcome{}, err
		}
	}
	refreshed, err := tx.LockPO(ctx, po.ID)
	if err != nil {
		return receiptOutcome{}, err
	}
	now := s.now()
	derived := DerivePOStatus(po.Status, refreshed.Lines)
	moved := derived != po.Status
	if moved {
		if err := tx.UpdatePOStatus(ctx, po.ID, derived); err != nil {
			return receiptOutcome{}, err
		}
		event := transitionEvent(actor, workflow.ActionReceive, shared.DocPurchaseOrder, po.ID, po.Number, string(po.Status), string(derived), "", now)
		event.RelatedDocType = shared.DocGoodsReceipt
		event.RelatedDocID = grn.ID
		if err := tx.AppendEvent(ctx, event); err != nil {
			return receiptOutcome{}, err
		}
		refreshed.Status = derived
		refreshed.UpdatedAt = now
	}
	for productID, cost := range lastCost {
		if err := tx.UpdateLastCost(ctx, productID, cost); err != nil {
			return receiptOutcome{}, err
		}
	}

	if err := tx.UpdateGRNStatus(ctx, grn.ID, to, &now); err != nil {
		return receiptOutcome{}, err
	}
	event := transitionEvent(actor, workflow.ActionPost, shared.DocGoodsReceipt, grn.ID, grn.Number, string(grn.Status), string(to), "", now)
	event.RelatedDocType = shared.DocPurchaseOrder
	event.RelatedDocID = po.ID
	if err := tx.AppendEvent(ctx, event); err != nil {
		return receiptOutcome{}, err
	}
	grn.Status = to
	grn.PostedAt = &now
	return receiptOutcome{grn: grn, po: refreshed, poMoved: moved, entries: entries}, nil
}

func (s *Service) afterReceipt(ctx context.Context, out receiptOutcome) {
	events := []shared.Event{{
		Type:           shared.EventGRNPosted,
		DocType:        shared.DocGoodsReceipt,
		DocID:          out.grn.ID,
		DocNumber:      out.grn.Number,
		RecipientRoles: []string{"procurement", "finance"},
		Payload: map[string]string{
			"po_number": out.po.Number,
			"lines":     strconv.Itoa(len(out.grn.Lines)),
		},
		OccurredAt: *out.grn.PostedAt,
	}}
	if out.poMoved {
		switch out.po.Status {
		case POStatusPartiallyReceived:
			events = append(events, poEvent(out.po, shared.EventPOPartiallyReceived, []string{"procurement"}))
		case POStatusFullyReceived:
			events = append(events, poEvent(out.po, shared.EventPOFullyReceived, []string{"procurement", "finance"}))
		}
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, events)
	s.logger.Info("goods receipt posted",
		slog.String("number", out.grn.Number),
		slog.String("po", out.po.Number),
		slog.String("po_status", string(out.po.Status)),
		slog.Int("entries", len(out.entries)))
}

func (s *Service) ledger() *inventory.Ledger {
	if s.inventory == nil {
		return inventory.NewLedger()
	}
	return s.inventory.Ledger()
}

func (s *Service) policy() inventory.Policy {
	if s.inventory == nil {
		return inventory.Policy{}
	}
	return s.inventory.Policy()
}

func indexPOLines(lines []POLine) map[int64]POLine {
	out := make(map[int64]POLine, len(lines))
	for _, line := range lines {
		out[line.ID] = line
	}
	return out
}

func checkOverReceipt(po PurchaseOrder, lines map[int64]POLine, incoming map[int64]decimal.Decimal) error {
	for lineID, qty := range incoming {
		line := lines[lineID]
		if qty.GreaterThan(line.Remaining()) {
			return fmt.Errorf("%w: %s line %d over-received: %s outstanding, %s incoming",
				shared.ErrValidation, po.Number, lineID, line.Remaining().String(), qty.String())
		}
	}
	return nil
}

