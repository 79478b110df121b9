package testutil

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Movements is an in-memory movement.RepositoryPort sharing a Store.
type Movements struct {
	Store *Store

	mu        sync.Mutex
	movements map[int64]movement.Movement
}

// NewMovements returns an empty movement repository backed by store.
func NewMovements(store *Store) *Movements {
	return &Movements{Store: store, movements: make(map[int64]movement.Movement)}
}

// WithTx implements movement.RepositoryPort.
func (r *Movements) WithTx(ctx context.Context, fn func(context.Context, movement.TxRepository) error) error {
	return r.Store.RunTx(func() error {
		return r.Tx(func() error { return fn(ctx, r.TxRepo()) })
	})
}

// Tx snapshots movement rows around fn and restores them when fn fails.
// Callers must already hold the Store transaction.
func (r *Movements) Tx(fn func() error) error {
	r.mu.Lock()
	snap := maps.Clone(r.movements)
	r.mu.Unlock()
	if err := fn(); err != nil {
		r.mu.Lock()
		r.movements = snap
		r.mu.Unlock()
		return err
	}
	return nil
}

// TxRepo returns the transactional view.
func (r *Movements) TxRepo() *MovementTx {
	return &MovementTx{Store: r.Store, repo: r}
}

// GetMovement implements movement.RepositoryPort.
func (r *Movements) GetMovement(_ context.Context, id int64) (movement.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[id]
	if !ok {
		return movement.Movement{}, fmt.Errorf("%w: movement %d", shared.ErrNotFound, id)
	}
	return m, nil
}

// ListMovements implements movement.RepositoryPort.
func (r *Movements) ListMovements(_ context.Context, filter movement.ListFilter) ([]movement.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []movement.Movement
	for _, m := range r.movements {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// All returns every stored movement ordered by id.
func (r *Movements) All() []movement.Movement {
	out, _ := r.ListMovements(context.Background(), movement.ListFilter{})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MovementTx implements movement.TxRepository.
type MovementTx struct {
	*Store
	repo *Movements
}

// CreateMovement implements movement.TxRepository.
func (t *MovementTx) CreateMovement(_ context.Context, m movement.Movement) (movement.Movement, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, existing := range t.repo.movements {
		if existing.Number == m.Number {
			return movement.Movement{}, fmt.Errorf("%w: %s", shared.ErrDuplicateDocument, m.Number)
		}
	}
	m.ID = t.NextID()
	lines := make([]movement.Line, len(m.Lines))
	for i, line := range m.Lines {
		line.ID = t.NextID()
		line.MovementID = m.ID
		lines[i] = line
	}
	m.Lines = lines
	t.repo.movements[m.ID] = m
	return m, nil
}

// LockMovement implements movement.TxRepository.
func (t *MovementTx) LockMovement(ctx context.Context, id int64) (movement.Movement, error) {
	return t.repo.GetMovement(ctx, id)
}

// UpdateStatus implements movement.TxRepository.
func (t *MovementTx) UpdateStatus(_ context.Context, id int64, status movement.Status, postedAt *time.Time) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	m, ok := t.repo.movements[id]
	if !ok {
		return fmt.Errorf("%w: movement %d", shared.ErrNotFound, id)
	}
	m.Status = status
	if postedAt != nil {
		m.PostedAt = postedAt
	}
	t.repo.movements[id] = m
	return nil
}

var (
	_ movement.RepositoryPort = (*Movements)(nil)
	_ movement.TxRepository   = (*MovementTx)(nil)
)
