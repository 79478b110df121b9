package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// ActionCreate is recorded when a procurement document is created.
const ActionCreate = "create"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, id int64) (PurchaseRequest, error)
	ListPRs(ctx context.Context, filter ListFilter) ([]PurchaseRequest, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, error)
	ListGRNs(ctx context.Context, filter ListFilter) ([]GoodsReceipt, error)
}

// TxRepository exposes transactional operations used by service. Lock
// methods return the document with its lines, locked for update.
type TxRepository interface {
	inventory.LedgerTx
	inventory.LotTx
	sequence.Store
	shared.EventLog
	CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error)
	LockPR(ctx context.Context, id int64) (PurchaseRequest, error)
	UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error
	LinkPRLine(ctx context.Context, prLineID, poLineID int64) error
	CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	LockPO(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	AddPOLineReceived(ctx context.Context, lineID int64, qty decimal.Decimal) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error)
	LockGRN(ctx context.Context, id int64) (GoodsReceipt, error)
	UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus, postedAt *time.Time) error
	SetGRNLineLot(ctx context.Context, lineID, lotID int64) error
	UpdateLastCost(ctx context.Context, productID int64, cost decimal.Decimal) error
}

// Service orchestrates procurement workflows.
type Service struct {
	repo      RepositoryPort
	catalog   masterdata.Catalog
	inventory *inventory.Service
	sequencer *sequence.Sequencer
	notifier  shared.Notifier
	observer  shared.PostingObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, inv *inventory.Service, seq *sequence.Sequencer, notifier shared.Notifier, logger *slog.Logger) *Service {
	if seq == nil {
		seq = sequence.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		inventory: inv,
		sequencer: seq,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver installs a posting observer.
func (s *Service) SetObserver(observer shared.PostingObserver) {
	s.observer = observer
}

// GetPR returns a purchase request.
func (s *Service) GetPR(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	if err := authorizeView(actor); err != nil {
		return PurchaseRequest{}, err
	}
	return s.repo.GetPR(ctx, id)
}

// ListPRs returns purchase requests.
func (s *Service) ListPRs(ctx context.Context, actor shared.Actor, filter ListFilter) ([]PurchaseRequest, error) {
	if err := authorizeView(actor); err != nil {
		return nil, err
	}
	return s.repo.ListPRs(ctx, filter)
}

// CreatePurchaseRequest stores a DRAFT PR.
func (s *Service) CreatePurchaseRequest(ctx context.Context, actor shared.Actor, input CreatePRInput) (PurchaseRequest, error) {
	if err := authorize(actor, shared.PermPRCreate); err != nil {
		return PurchaseRequest{}, err
	}
	if len(input.Lines) == 0 {
		return PurchaseRequest{}, fmt.Errorf("%w: purchase request needs at least one line", shared.ErrValidation)
	}
	lines := make([]PRLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return PurchaseRequest{}, fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if err := s.checkItem(ctx, line.ProductID, line.VariantID); err != nil {
			return PurchaseRequest{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, PRLine{ProductID: line.ProductID, VariantID: line.VariantID, Qty: line.Qty, Note: strings.TrimSpace(line.Note)})
	}
	var created PurchaseRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.sequencer.Next(ctx, tx, shared.DocPurchaseRequest)
		if err != nil {
			return err
		}
		now := s.now()
		created, err = tx.CreatePR(ctx, PurchaseRequest{
			Number:    number,
			Status:    PRStatusDraft,
			RequestBy: actor.ID,
			Note:      strings.TrimSpace(input.Note),
			CreatedAt: now,
			UpdatedAt: now,
			Lines:     lines,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, shared.DocumentEvent{
			ActorID:    actor.ID,
			Action:     ActionCreate,
			DocType:    shared.DocPurchaseRequest,
			DocID:      created.ID,
			DocNumber:  created.Number,
			ToStatus:   string(PRStatusDraft),
			OccurredAt: now,
		})
	})
	return created, err
}

// SubmitPR moves a draft PR to SUBMITTED.
func (s *Service) SubmitPR(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	return s.transitionPR(ctx, actor, id, workflow.ActionSubmit, "")
}

// ApprovePR approves a submitted PR.
func (s *Service) ApprovePR(ctx context.Context, actor shared.Actor, id int64) (PurchaseRequest, error) {
	return s.transitionPR(ctx, actor, id, workflow.ActionApprove, "")
}

// RejectPR rejects a submitted PR.
func (s *Service) RejectPR(ctx context.Context, actor shared.Actor, id int64, reason string) (PurchaseRequest, error) {
	return s.transitionPR(ctx, actor, id, workflow.ActionReject, reason)
}

// CancelPR cancels a PR that has not been converted.
func (s *Service) CancelPR(ctx context.Context, actor shared.Actor, id int64, reason string) (PurchaseRequest, error) {
	return s.transitionPR(ctx, actor, id, workflow.ActionCancel, reason)
}

func (s *Service) transitionPR(ctx context.Context, actor shared.Actor, id int64, action workflow.Action, reason string) (PurchaseRequest, error) {
	var result PurchaseRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.LockPR(ctx, id)
		if err != nil {
			return err
		}
		to, err := PRMachine.Fire(actor, pr.Status, action)
		if err != nil {
			return fmt.Errorf("%s: %w", pr.Number, err)
		}
		if err := requireReason(action, reason); err != nil {
			return err
		}
		if err := tx.UpdatePRStatus(ctx, pr.ID, to); err != nil {
			return err
		}
		now := s.now()
		if err := tx.AppendEvent(ctx, transitionEvent(actor, action, shared.DocPurchaseRequest, pr.ID, pr.Number, string(pr.Status), string(to), reason, now)); err != nil {
			return err
		}
		pr.Status = to
		pr.UpdatedAt = now
		result = pr
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.notifyPR(ctx, result, action)
	return result, nil
}

// GetPO returns a purchase order.
func (s *Service) GetPO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	if err := authorizeView(actor); err != nil {
		return PurchaseOrder{}, err
	}
	return s.repo.GetPO(ctx, id)
}

// ListPOs returns purchase orders.
func (s *Service) ListPOs(ctx context.Context, actor shared.Actor, filter ListFilter) ([]PurchaseOrder, error) {
	if err := authorizeView(actor); err != nil {
		return nil, err
	}
	return s.repo.ListPOs(ctx, filter)
}

// CreatePurchaseOrder stores a DRAFT PO that is not backed by a request.
func (s *Service) CreatePurchaseOrder(ctx context.Context, actor shared.Actor, input CreatePOInput) (PurchaseOrder, error) {
	if err := authorize(actor, shared.PermPOCreate); err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.checkSupplier(ctx, input.SupplierID); err != nil {
		return PurchaseOrder{}, err
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order needs at least one line", shared.ErrValidation)
	}
	lines := make([]POLine, 0, len(input.Lines))
	for i, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i+1)
		}
		if line.UnitPrice.IsNegative() {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d unit price must not be negative", shared.ErrValidation, i+1)
		}
		if err := s.checkItem(ctx, line.ProductID, line.VariantID); err != nil {
			return PurchaseOrder{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, POLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			Note:      strings.TrimSpace(line.Note),
		})
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.createPO(ctx, tx, actor, PurchaseOrder{
			SupplierID:   input.SupplierID,
			Currency:     input.Currency,
			ExpectedDate: input.ExpectedDate,
			Note:         strings.TrimSpace(input.Note),
			Lines:        lines,
		})
		return err
	})
	return created, err
}

func (s *Service) createPO(ctx context.Context, tx TxRepository, actor shared.Actor, po PurchaseOrder) (PurchaseOrder, error) {
	number, err := s.sequencer.Next(ctx, tx, shared.DocPurchaseOrder)
	if err != nil {
		return PurchaseOrder{}, err
	}
	now := s.now()
	po.Number = number
	po.Status = POStatusDraft
	po.CreatedBy = actor.ID
	po.CreatedAt = now
	po.UpdatedAt = now
	if po.Currency == "" {
		po.Currency = "IDR"
	}
	for i := range po.Lines {
		po.Lines[i].QtyReceived = decimal.Zero
	}
	created, err := tx.CreatePO(ctx, po)
	if err != nil {
		return PurchaseOrder{}, err
	}
	event := shared.DocumentEvent{
		ActorID:    actor.ID,
		Action:     ActionCreate,
		DocType:    shared.DocPurchaseOrder,
		DocID:      created.ID,
		DocNumber:  created.Number,
		ToStatus:   string(POStatusDraft),
		OccurredAt: now,
	}
	if created.PRID != 0 {
		event.RelatedDocType = shared.DocPurchaseRequest
		event.RelatedDocID = created.PRID
	}
	return created, tx.AppendEvent(ctx, event)
}

// SubmitPO moves a draft PO to SUBMITTED.
func (s *Service) SubmitPO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionSubmit, "")
}

// ApprovePO approves a submitted PO.
func (s *Service) ApprovePO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionApprove, "")
}

// RejectPO rejects a submitted PO.
func (s *Service) RejectPO(ctx context.Context, actor shared.Actor, id int64, reason string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionReject, reason)
}

// SendPO marks an approved PO as sent to the supplier.
func (s *Service) SendPO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionSend, "")
}

// StartPO records that the supplier has started fulfilment.
func (s *Service) StartPO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionStart, "")
}

// ClosePO closes a fully received PO.
func (s *Service) ClosePO(ctx context.Context, actor shared.Actor, id int64) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionClose, "")
}

// CancelPO cancels a PO before any goods are received.
func (s *Service) CancelPO(ctx context.Context, actor shared.Actor, id int64, reason string) (PurchaseOrder, error) {
	return s.transitionPO(ctx, actor, id, workflow.ActionCancel, reason)
}

func (s *Service) transitionPO(ctx context.Context, actor shared.Actor, id int64, action workflow.Action, reason string) (PurchaseOrder, error) {
	var result PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.LockPO(ctx, id)
		if err != nil {
			return err
		}
		to, err := POMachine.Fire(actor, po.Status, action)
		if err != nil {
			return fmt.Errorf("%s: %w", po.Number, err)
		}
		if err := requireReason(action, reason); err != nil {
			return err
		}
		if err := tx.UpdatePOStatus(ctx, po.ID, to); err != nil {
			return err
		}
		now := s.now()
		if err := tx.AppendEvent(ctx, transitionEvent(actor, action, shared.DocPurchaseOrder, po.ID, po.Number, string(po.Status), string(to), reason, now)); err != nil {
			return err
		}
		po.Status = to
		po.UpdatedAt = now
		result = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.notifyPO(ctx, result, action)
	return result, nil
}

func (s *Service) checkItem(ctx context.Context, productID, variantID int64) error {
	if productID == 0 {
		return fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if s.catalog == nil {
		return nil
	}
	_, err := masterdata.ResolveStockable(ctx, s.catalog, productID, variantID)
	return err
}

func (s *Service) checkSupplier(ctx context.Context, supplierID int64) error {
	if supplierID == 0 {
		return fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if s.catalog == nil {
		return nil
	}
	supplier, err := s.catalog.GetSupplier(ctx, supplierID)
	if err != nil {
		return fmt.Errorf("supplier %d: %w", supplierID, err)
	}
	if !supplier.IsActive || supplier.DeletedAt != nil {
		return fmt.Errorf("%w: supplier %s is inactive", shared.ErrValidation, supplier.Code)
	}
	return nil
}

func (s *Service) notifyPR(ctx context.Context, pr PurchaseRequest, action workflow.Action) {
	var event shared.EventType
	var roles []string
	switch action {
	case workflow.ActionSubmit:
		event, roles = shared.EventPRSubmitted, []string{"procurement_manager"}
	case workflow.ActionApprove:
		event, roles = shared.EventPRApproved, []string{"procurement"}
	case workflow.ActionReject:
		event, roles = shared.EventPRRejected, []string{"requester"}
	default:
		return
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, []shared.Event{{
		Type:           event,
		DocType:        shared.DocPurchaseRequest,
		DocID:          pr.ID,
		DocNumber:      pr.Number,
		RecipientRoles: roles,
		Payload:        map[string]string{"request_by": strconv.FormatInt(pr.RequestBy, 10)},
		OccurredAt:     pr.UpdatedAt,
	}})
}

func (s *Service) notifyPO(ctx context.Context, po PurchaseOrder, action workflow.Action) {
	var event shared.EventType
	var roles []string
	switch action {
	case workflow.ActionSubmit:
		event, roles = shared.EventPOSubmitted, []string{"procurement_manager"}
	case workflow.ActionApprove:
		event, roles = shared.EventPOApproved, []string{"procurement"}
	case workflow.ActionSend:
		event, roles = shared.EventPOSent, []string{"procurement", "warehouse"}
	default:
		return
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, []shared.Event{poEvent(po, event, roles)})
}

func poEvent(po PurchaseOrder, event shared.EventType, roles []string) shared.Event {
	return shared.Event{
		Type:           event,
		DocType:        shared.DocPurchaseOrder,
		DocID:          po.ID,
		DocNumber:      po.Number,
		RecipientRoles: roles,
		Payload: map[string]string{
			"supplier_id": strconv.FormatInt(po.SupplierID, 10),
			"status":      string(po.Status),
		},
		OccurredAt: po.UpdatedAt,
	}
}

func transitionEvent(actor shared.Actor, action workflow.Action, docType shared.DocType, id int64, number, from, to, reason string, at time.Time) shared.DocumentEvent {
	return shared.DocumentEvent{
		ActorID:    actor.ID,
		Action:     string(action),
		DocType:    docType,
		DocID:      id,
		DocNumber:  number,
		FromStatus: from,
		ToStatus:   to,
		Reason:     strings.TrimSpace(reason),
		OccurredAt: at,
	}
}

func requireReason(action workflow.Action, reason string) error {
	if (action == workflow.ActionReject || action == workflow.ActionCancel) && strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: %s requires a reason", shared.ErrValidation, action)
	}
	return nil
}

func authorize(actor shared.Actor, perm string) error {
	if !actor.Can(perm) {
		return fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, perm)
	}
	return nil
}

// authorizeView admits anyone holding a procurement permission.
func authorizeView(actor shared.Actor) error {
	for _, perm := range shared.ProcurementScopes() {
		if actor.Can(perm) {
			return nil
		}
	}
	return fmt.Errorf("%w: requires a procurement permission", shared.ErrPermissionDenied)
}
