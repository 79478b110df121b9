package movement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/sequence"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// ActionCreate is recorded in the event log when a movement is created.
const ActionCreate = "create"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter ListFilter) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service. It carries
// the ledger, sequence and event log so a posting commits as one unit.
type TxRepository interface {
	inventory.LedgerTx
	sequence.Store
	shared.EventLog
	CreateMovement(ctx context.Context, m Movement) (Movement, error)
	// LockMovement loads the movement with its lines, locked for update.
	LockMovement(ctx context.Context, id int64) (Movement, error)
	UpdateStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error
	// ClaimIdempotencyKey fails with shared.ErrIdempotencyConflict when key
	// was claimed by an earlier committed transaction.
	ClaimIdempotencyKey(ctx context.Context, key, module string) error
}

// Service drives movements through their lifecycle.
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

// Get returns a movement with its lines.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Movement, error) {
	if !actor.Can(shared.PermInventoryView) {
		return Movement{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermInventoryView)
	}
	return s.repo.GetMovement(ctx, id)
}

// List returns movements matching filter.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Movement, error) {
	if !actor.Can(shared.PermInventoryView) {
		return nil, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermInventoryView)
	}
	return s.repo.ListMovements(ctx, filter)
}

// Create validates and stores a DRAFT movement with a fresh number.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Movement, error) {
	if !actor.Can(shared.PermMovementCreate) {
		return Movement{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermMovementCreate)
	}
	if err := s.validate(ctx, input); err != nil {
		return Movement{}, err
	}
	var created Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.create(ctx, tx, actor, input, shared.DocStockMovement)
		return err
	})
	return created, err
}

func (s *Service) validate(ctx context.Context, input CreateInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, input.Type)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: movement needs at least one line", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if _, err := inventory.EffectsFor(line.Spec(input.Type), inventory.DocRef{}); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if s.catalog == nil {
			continue
		}
		if _, err := masterdata.ResolveStockable(ctx, s.catalog, line.ProductID, line.VariantID); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		for _, loc := range []int64{line.FromLocationID, line.ToLocationID} {
			if loc == 0 {
				continue
			}
			if _, err := masterdata.ResolveLocation(ctx, s.catalog, loc); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
	}
	return nil
}

func (s *Service) create(ctx context.Context, tx TxRepository, actor shared.Actor, input CreateInput, numbering shared.DocType) (Movement, error) {
	if input.IdempotencyKey != "" {
		if err := tx.ClaimIdempotencyKey(ctx, input.IdempotencyKey, input.IdempotencyModule); err != nil {
			return Movement{}, err
		}
	}
	for i, line := range input.Lines {
		if err := inventory.CheckLotOwner(ctx, tx, line.ProductID, line.VariantID, line.LotID); err != nil {
			return Movement{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	number, err := s.sequencer.Next(ctx, tx, numbering)
	if err != nil {
		return Movement{}, err
	}
	now := s.now()
	m := Movement{
		Number:     number,
		Type:       input.Type,
		Status:     StatusDraft,
		RefDocType: input.RefDocType,
		RefDocID:   input.RefDocID,
		Note:       strings.TrimSpace(input.Note),
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Lines:      input.Lines,
	}
	created, err := tx.CreateMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	err = tx.AppendEvent(ctx, shared.DocumentEvent{
		ActorID:        actor.ID,
		Action:         ActionCreate,
		DocType:        shared.DocStockMovement,
		DocID:          created.ID,
		DocNumber:      created.Number,
		ToStatus:       string(StatusDraft),
		RelatedDocType: input.RefDocType,
		RelatedDocID:   input.RefDocID,
		OccurredAt:     now,
	})
	return created, err
}

// Submit moves a draft to SUBMITTED.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64) (Movement, error) {
	return s.transition(ctx, actor, id, workflow.ActionSubmit, "")
}

// Approve moves a submitted movement to APPROVED.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (Movement, error) {
	return s.transition(ctx, actor, id, workflow.ActionApprove, "")
}

// Reject moves a submitted movement to REJECTED.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, reason string) (Movement, error) {
	return s.transition(ctx, actor, id, workflow.ActionReject, reason)
}

// Cancel cancels a movement that has not been posted.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, reason string) (Movement, error) {
	return s.transition(ctx, actor, id, workflow.ActionCancel, reason)
}

// Post applies an approved movement to the ledger. The movement row stays
// locked from the guard to the status write, so a second Post observes
// POSTED and fails with ErrInvalidTransition.
func (s *Service) Post(ctx context.Context, actor shared.Actor, id int64) (Movement, error) {
	return s.transition(ctx, actor, id, workflow.ActionPost, "")
}

func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, action workflow.Action, reason string) (Movement, error) {
	var (
		result  Movement
		entries []inventory.CardEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.LockMovement(ctx, id)
		if err != nil {
			return err
		}
		result, entries, err = s.fire(ctx, tx, actor, m, action, reason)
		return err
	})
	if action == workflow.ActionPost {
		shared.ObservePosting(s.observer, shared.DocStockMovement, err)
	}
	if err != nil {
		return Movement{}, err
	}
	s.afterCommit(ctx, result, action, entries)
	return result, nil
}

// fire guards and performs one transition on a locked movement.
func (s *Service) fire(ctx context.Context, tx TxRepository, actor shared.Actor, m Movement, action workflow.Action, reason string) (Movement, []inventory.CardEntry, error) {
	to, err := Machine.Fire(actor, m.Status, action)
	if err != nil {
		return Movement{}, nil, fmt.Errorf("%s: %w", m.Number, err)
	}
	if (action == workflow.ActionReject || action == workflow.ActionCancel) && strings.TrimSpace(reason) == "" {
		return Movement{}, nil, fmt.Errorf("%w: %s requires a reason", shared.ErrValidation, action)
	}
	now := s.now()
	var entries []inventory.CardEntry
	var postedAt *time.Time
	if action == workflow.ActionPost {
		entries, err = s.applyLedger(ctx, tx, m)
		if err != nil {
			return Movement{}, nil, fmt.Errorf("%s: %w", m.Number, err)
		}
		postedAt = &now
	}
	if err := tx.UpdateStatus(ctx, m.ID, to, postedAt); err != nil {
		return Movement{}, nil, err
	}
	if err := tx.AppendEvent(ctx, shared.DocumentEvent{
		ActorID:    actor.ID,
		Action:     string(action),
		DocType:    shared.DocStockMovement,
		DocID:      m.ID,
		DocNumber:  m.Number,
		FromStatus: string(m.Status),
		ToStatus:   string(to),
		Reason:     strings.TrimSpace(reason),
		OccurredAt: now,
	}); err != nil {
		return Movement{}, nil, err
	}
	m.Status = to
	m.UpdatedAt = now
	if postedAt != nil {
		m.PostedAt = postedAt
	}
	return m, entries, nil
}

func (s *Service) applyLedger(ctx context.Context, tx TxRepository, m Movement) ([]inventory.CardEntry, error) {
	ref := m.Ref(shared.DocStockMovement)
	if m.RefDocType == shared.DocStockTake {
		ref.DocType = shared.DocAdjustment
	}
	var effects []inventory.Effect
	for i, line := range m.Lines {
		lineEffects, err := inventory.EffectsFor(line.Spec(m.Type), ref)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		effects = append(effects, lineEffects...)
	}
	return s.ledger().Apply(ctx, tx, effects, s.policy())
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

// CreateAndPost creates a movement and drives it through submit, approve and
// post in one bulk transaction. Each step is guarded by the machine, so actor
// must hold every posting permission.
func (s *Service) CreateAndPost(ctx context.Context, actor shared.Actor, input CreateInput) (Movement, error) {
	if !actor.Can(shared.PermMovementCreate) {
		return Movement{}, fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermMovementCreate)
	}
	if err := s.validate(ctx, input); err != nil {
		return Movement{}, err
	}
	var (
		result  Movement
		entries []inventory.CardEntry
	)
	err := s.repo.WithTx(db.WithBulk(ctx), func(ctx context.Context, tx TxRepository) error {
		var err error
		result, entries, err = s.CreatePostedTx(ctx, tx, actor, input, shared.DocStockMovement)
		return err
	})
	shared.ObservePosting(s.observer, shared.DocStockMovement, err)
	if err != nil {
		return Movement{}, err
	}
	s.afterCommit(ctx, result, workflow.ActionPost, entries)
	return result, nil
}

// CreatePostedTx creates and posts a movement inside the caller's
// transaction, numbering it from numbering. Callers own notification.
func (s *Service) CreatePostedTx(ctx context.Context, tx TxRepository, actor shared.Actor, input CreateInput, numbering shared.DocType) (Movement, []inventory.CardEntry, error) {
	m, err := s.create(ctx, tx, actor, input, numbering)
	if err != nil {
		return Movement{}, nil, err
	}
	var entries []inventory.CardEntry
	for _, action := range []workflow.Action{workflow.ActionSubmit, workflow.ActionApprove, workflow.ActionPost} {
		m, entries, err = s.fire(ctx, tx, actor, m, action, "")
		if err != nil {
			return Movement{}, nil, err
		}
	}
	return m, entries, nil
}

// LowStockAfter runs the low-stock scan for products decremented by entries.
func (s *Service) LowStockAfter(ctx context.Context, entries []inventory.CardEntry) {
	if s.inventory == nil {
		return
	}
	if ids := inventory.DecrementedProducts(entries); len(ids) > 0 {
		s.inventory.CheckLowStock(ctx, ids)
	}
}

func (s *Service) afterCommit(ctx context.Context, m Movement, action workflow.Action, entries []inventory.CardEntry) {
	var event shared.EventType
	var roles []string
	switch action {
	case workflow.ActionSubmit:
		event, roles = shared.EventMovementSubmitted, []string{"warehouse_supervisor"}
	case workflow.ActionPost:
		event, roles = shared.EventMovementPosted, []string{"warehouse"}
	default:
		return
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, []shared.Event{{
		Type:           event,
		DocType:        shared.DocStockMovement,
		DocID:          m.ID,
		DocNumber:      m.Number,
		RecipientRoles: roles,
		Payload: map[string]string{
			"movement_type": string(m.Type),
			"lines":         strconv.Itoa(len(m.Lines)),
		},
		OccurredAt: m.UpdatedAt,
	}})
	if action == workflow.ActionPost {
		s.logger.Info("movement posted", slog.String("number", m.Number), slog.String("type", string(m.Type)), slog.Int("entries", len(entries)))
		s.LowStockAfter(ctx, entries)
	}
}
