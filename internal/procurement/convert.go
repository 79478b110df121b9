package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// SupplierAllocation assigns approved request lines to one supplier. Each
// allocation becomes one purchase order.
type SupplierAllocation struct {
	SupplierID   int64
	Currency     string
	ExpectedDate *time.Time
	Note         string
	Lines        []AllocatedLine
}

// AllocatedLine prices one request line for the supplier.
type AllocatedLine struct {
	PRLineID  int64
	UnitPrice decimal.Decimal
}

// ConvertToPurchaseOrders turns approved request lines into DRAFT purchase
// orders, one per supplier allocation, and marks the request CONVERTED. A
// converted request may be converted again for lines still unallocated.
// Every PR line is linked to exactly one PO line.
func (s *Service) ConvertToPurchaseOrders(ctx context.Context, actor shared.Actor, prID int64, allocations []SupplierAllocation) ([]PurchaseOrder, error) {
	if err := authorize(actor, shared.PermPRConvert); err != nil {
		return nil, err
	}
	if err := authorize(actor, shared.PermPOCreate); err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: at least one supplier allocation required", shared.ErrValidation)
	}
	for i, alloc := range allocations {
		if len(alloc.Lines) == 0 {
			return nil, fmt.Errorf("%w: allocation %d has no lines", shared.ErrValidation, i+1)
		}
		if err := s.checkSupplier(ctx, alloc.SupplierID); err != nil {
			return nil, fmt.Errorf("allocation %d: %w", i+1, err)
		}
	}
	var (
		orders []PurchaseOrder
		pr     PurchaseRequest
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		pr, err = tx.LockPR(ctx, prID)
		if err != nil {
			return err
		}
		to, err := PRMachine.Fire(actor, pr.Status, workflow.ActionConvert)
		if err != nil {
			return fmt.Errorf("%s: %w", pr.Number, err)
		}
		byID := make(map[int64]PRLine, len(pr.Lines))
		for _, line := range pr.Lines {
			byID[line.ID] = line
		}
		seen := make(map[int64]struct{})
		orders = make([]PurchaseOrder, 0, len(allocations))
		for i, alloc := range allocations {
			po := PurchaseOrder{
				SupplierID:   alloc.SupplierID,
				PRID:         pr.ID,
				Currency:     strings.ToUpper(strings.TrimSpace(alloc.Currency)),
				ExpectedDate: alloc.ExpectedDate,
				Note:         strings.TrimSpace(alloc.Note),
			}
			for _, al := range alloc.Lines {
				line, ok := byID[al.PRLineID]
				if !ok {
					return fmt.Errorf("%w: allocation %d: line %d is not on %s", shared.ErrValidation, i+1, al.PRLineID, pr.Number)
				}
				if line.Converted() {
					return fmt.Errorf("%w: allocation %d: line %d already converted", shared.ErrValidation, i+1, al.PRLineID)
				}
				if _, dup := seen[al.PRLineID]; dup {
					return fmt.Errorf("%w: line %d allocated twice", shared.ErrValidation, al.PRLineID)
				}
				if al.UnitPrice.IsNegative() {
					return fmt.Errorf("%w: allocation %d: unit price must not be negative", shared.ErrValidation, i+1)
				}
				seen[al.PRLineID] = struct{}{}
				po.Lines = append(po.Lines, POLine{
					PRLineID:  line.ID,
					ProductID: line.ProductID,
					VariantID: line.VariantID,
					Qty:       line.Qty,
					UnitPrice: al.UnitPrice,
					Note:      line.Note,
				})
			}
			created, err := s.createPO(ctx, tx, actor, po)
			if err != nil {
				return err
			}
			for _, line := range created.Lines {
				if err := tx.LinkPRLine(ctx, line.PRLineID, line.ID); err != nil {
					return err
				}
			}
			orders = append(orders, created)
		}
		if err := tx.UpdatePRStatus(ctx, pr.ID, to); err != nil {
			return err
		}
		now := s.now()
		event := transitionEvent(actor, workflow.ActionConvert, shared.DocPurchaseRequest, pr.ID, pr.Number, string(pr.Status), string(to), "", now)
		if len(orders) == 1 {
			event.RelatedDocType = shared.DocPurchaseOrder
			event.RelatedDocID = orders[0].ID
		}
		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("purchase request converted", "number", pr.Number, "orders", len(orders))
	return orders, nil
}
