package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
	GetStockCard(ctx context.Context, filter CardFilter) ([]CardEntry, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
	LowStock(ctx context.Context, productIDs []int64) ([]LowStockAlert, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service exposes ledger queries, reservations and low-stock alerts.
type Service struct {
	repo     RepositoryPort
	ledger   *Ledger
	policy   Policy
	notifier shared.Notifier
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, cfg ServiceConfig, notifier shared.Notifier, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		policy:   Policy{AllowNegative: cfg.AllowNegativeStock},
		notifier: notifier,
		logger:   logger,
	}
}

// Policy returns the ledger policy posting services must apply.
func (s *Service) Policy() Policy {
	return s.policy
}

// Ledger returns the ledger used by the service.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Balances lists stock balances.
func (s *Service) Balances(ctx context.Context, actor shared.Actor, filter BalanceFilter) ([]Balance, error) {
	if err := authorize(actor, shared.PermInventoryView); err != nil {
		return nil, err
	}
	return s.repo.ListBalances(ctx, filter)
}

// StockCard lists stock card entries for one product at one location.
func (s *Service) StockCard(ctx context.Context, actor shared.Actor, filter CardFilter) ([]CardEntry, error) {
	if err := authorize(actor, shared.PermInventoryView); err != nil {
		return nil, err
	}
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, fmt.Errorf("%w: product and location required", shared.ErrValidation)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: invalid date range", shared.ErrValidation)
	}
	return s.repo.GetStockCard(ctx, filter)
}

// Lots lists lots earliest expiry first.
func (s *Service) Lots(ctx context.Context, actor shared.Actor, filter LotFilter) ([]Lot, error) {
	if err := authorize(actor, shared.PermInventoryView); err != nil {
		return nil, err
	}
	return s.repo.ListLots(ctx, filter)
}

// Reserve earmarks stock for a later issue.
func (s *Service) Reserve(ctx context.Context, actor shared.Actor, input ReservationInput) (Balance, error) {
	if err := authorize(actor, shared.PermInventoryReserve); err != nil {
		return Balance{}, err
	}
	var result Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bal, err := s.ledger.Reserve(ctx, tx, input.Key, input.Qty)
		result = bal
		return err
	})
	return result, err
}

// Release returns reserved stock.
func (s *Service) Release(ctx context.Context, actor shared.Actor, input ReservationInput) (Balance, error) {
	if err := authorize(actor, shared.PermInventoryReserve); err != nil {
		return Balance{}, err
	}
	var result Balance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bal, err := s.ledger.Release(ctx, tx, input.Key, input.Qty)
		result = bal
		return err
	})
	return result, err
}

// CheckLowStock emits a stock.low event for every product at or below its
// reorder point. It runs after the decrementing transaction has committed and
// only logs failures.
func (s *Service) CheckLowStock(ctx context.Context, productIDs []int64) []LowStockAlert {
	ids := uniqueIDs(productIDs)
	if len(ids) == 0 {
		return nil
	}
	alerts, err := s.repo.LowStock(ctx, ids)
	if err != nil {
		s.logger.Warn("low stock scan", slog.Any("error", err))
		return nil
	}
	events := make([]shared.Event, 0, len(alerts))
	now := time.Now().UTC()
	for _, a := range alerts {
		events = append(events, shared.Event{
			Type:           shared.EventStockLow,
			RecipientRoles: []string{"warehouse", "purchasing"},
			Payload: map[string]string{
				"product_id":    strconv.FormatInt(a.ProductID, 10),
				"sku":           a.SKU,
				"qty_on_hand":   a.QtyOnHand.String(),
				"reorder_point": a.ReorderPoint.String(),
			},
			OccurredAt: now,
		})
	}
	shared.NotifyAfterCommit(ctx, s.logger, s.notifier, events)
	return alerts
}

// DecrementedProducts returns the products whose stock went down in entries.
func DecrementedProducts(entries []CardEntry) []int64 {
	var ids []int64
	for _, e := range entries {
		if e.QtyOut.IsPositive() {
			ids = append(ids, e.Key.ProductID)
		}
	}
	return uniqueIDs(ids)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func authorize(actor shared.Actor, perm string) error {
	if !actor.Can(perm) {
		return fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, perm)
	}
	return nil
}
