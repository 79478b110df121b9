package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/procurement"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Procurement is an in-memory procurement.RepositoryPort sharing a Store.
// Last-cost updates go to Catalog.
type Procurement struct {
	Store   *Store
	Catalog *Catalog

	mu   sync.Mutex
	prs  map[int64]procurement.PurchaseRequest
	pos  map[int64]procurement.PurchaseOrder
	grns map[int64]procurement.GoodsReceipt
}

// NewProcurement returns an empty procurement repository.
func NewProcurement(store *Store, catalog *Catalog) *Procurement {
	return &Procurement{
		Store:   store,
		Catalog: catalog,
		prs:     make(map[int64]procurement.PurchaseRequest),
		pos:     make(map[int64]procurement.PurchaseOrder),
		grns:    make(map[int64]procurement.GoodsReceipt),
	}
}

type procurementSnapshot struct {
	prs  map[int64]procurement.PurchaseRequest
	pos  map[int64]procurement.PurchaseOrder
	grns map[int64]procurement.GoodsReceipt
}

// snapshot deep-copies documents so line edits inside a failed
// transaction do not leak into the restored state.
func (r *Procurement) snapshot() procurementSnapshot {
	snap := procurementSnapshot{
		prs:  make(map[int64]procurement.PurchaseRequest, len(r.prs)),
		pos:  make(map[int64]procurement.PurchaseOrder, len(r.pos)),
		grns: make(map[int64]procurement.GoodsReceipt, len(r.grns)),
	}
	for id, pr := range r.prs {
		pr.Lines = slices.Clone(pr.Lines)
		snap.prs[id] = pr
	}
	for id, po := range r.pos {
		po.Lines = slices.Clone(po.Lines)
		snap.pos[id] = po
	}
	for id, grn := range r.grns {
		grn.Lines = slices.Clone(grn.Lines)
		snap.grns[id] = grn
	}
	return snap
}

// WithTx implements procurement.RepositoryPort.
func (r *Procurement) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.Store.RunTx(func() error {
		r.mu.Lock()
		snap := r.snapshot()
		r.mu.Unlock()
		if err := fn(ctx, &ProcurementTx{Store: r.Store, repo: r}); err != nil {
			r.mu.Lock()
			r.prs, r.pos, r.grns = snap.prs, snap.pos, snap.grns
			r.mu.Unlock()
			return err
		}
		return nil
	})
}

// GetPR implements procurement.RepositoryPort.
func (r *Procurement) GetPR(_ context.Context, id int64) (procurement.PurchaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.prs[id]
	if !ok {
		return procurement.PurchaseRequest{}, fmt.Errorf("%w: purchase request %d", shared.ErrNotFound, id)
	}
	pr.Lines = slices.Clone(pr.Lines)
	return pr, nil
}

// ListPRs implements procurement.RepositoryPort.
func (r *Procurement) ListPRs(_ context.Context, filter procurement.ListFilter) ([]procurement.PurchaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []procurement.PurchaseRequest
	for _, pr := range r.prs {
		if filter.Status == "" || string(pr.Status) == filter.Status {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// GetPO implements procurement.RepositoryPort.
func (r *Procurement) GetPO(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return procurement.PurchaseOrder{}, fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	po.Lines = slices.Clone(po.Lines)
	return po, nil
}

// ListPOs implements procurement.RepositoryPort.
func (r *Procurement) ListPOs(_ context.Context, filter procurement.ListFilter) ([]procurement.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []procurement.PurchaseOrder
	for _, po := range r.pos {
		if filter.Status == "" || string(po.Status) == filter.Status {
			out = append(out, po)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// GetGRN implements procurement.RepositoryPort.
func (r *Procurement) GetGRN(_ context.Context, id int64) (procurement.GoodsReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	grn, ok := r.grns[id]
	if !ok {
		return procurement.GoodsReceipt{}, fmt.Errorf("%w: goods receipt %d", shared.ErrNotFound, id)
	}
	grn.Lines = slices.Clone(grn.Lines)
	return grn, nil
}

// ListGRNs implements procurement.RepositoryPort.
func (r *Procurement) ListGRNs(_ context.Context, filter procurement.ListFilter) ([]procurement.GoodsReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []procurement.GoodsReceipt
	for _, grn := range r.grns {
		if filter.Status == "" || string(grn.Status) == filter.Status {
			out = append(out, grn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ProcurementTx implements procurement.TxRepository.
type ProcurementTx struct {
	*Store
	repo *Procurement
}

// CreatePR implements procurement.TxRepository.
func (t *ProcurementTx) CreatePR(_ context.Context, pr procurement.PurchaseRequest) (procurement.PurchaseRequest, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	pr.ID = t.NextID()
	lines := make([]procurement.PRLine, len(pr.Lines))
	for i, line := range pr.Lines {
		line.ID = t.NextID()
		line.PRID = pr.ID
		lines[i] = line
	}
	pr.Lines = lines
	t.repo.prs[pr.ID] = pr
	return pr, nil
}

// LockPR implements procurement.TxRepository.
func (t *ProcurementTx) LockPR(ctx context.Context, id int64) (procurement.PurchaseRequest, error) {
	return t.repo.GetPR(ctx, id)
}

// UpdatePRStatus implements procurement.TxRepository.
func (t *ProcurementTx) UpdatePRStatus(_ context.Context, id int64, status procurement.PRStatus) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	pr, ok := t.repo.prs[id]
	if !ok {
		return fmt.Errorf("%w: purchase request %d", shared.ErrNotFound, id)
	}
	pr.Status = status
	t.repo.prs[id] = pr
	return nil
}

// LinkPRLine implements procurement.TxRepository.
func (t *ProcurementTx) LinkPRLine(_ context.Context, prLineID, poLineID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, pr := range t.repo.prs {
		for i, line := range pr.Lines {
			if line.ID != prLineID {
				continue
			}
			if line.POLineID != 0 {
				return fmt.Errorf("%w: PR line %d already converted", shared.ErrValidation, prLineID)
			}
			pr.Lines = slices.Clone(pr.Lines)
			pr.Lines[i].POLineID = poLineID
			t.repo.prs[id] = pr
			return nil
		}
	}
	return fmt.Errorf("%w: PR line %d", shared.ErrNotFound, prLineID)
}

// CreatePO implements procurement.TxRepository.
func (t *ProcurementTx) CreatePO(_ context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	po.ID = t.NextID()
	lines := make([]procurement.POLine, len(po.Lines))
	for i, line := range po.Lines {
		line.ID = t.NextID()
		line.POID = po.ID
		lines[i] = line
	}
	po.Lines = lines
	t.repo.pos[po.ID] = po
	return po, nil
}

// LockPO implements procurement.TxRepository.
func (t *ProcurementTx) LockPO(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return t.repo.GetPO(ctx, id)
}

// UpdatePOStatus implements procurement.TxRepository.
func (t *ProcurementTx) UpdatePOStatus(_ context.Context, id int64, status procurement.POStatus) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	po, ok := t.repo.pos[id]
	if !ok {
		return fmt.Errorf("%w: purchase order %d", shared.ErrNotFound, id)
	}
	po.Status = status
	t.repo.pos[id] = po
	return nil
}

// AddPOLineReceived implements procurement.TxRepository. It enforces the
// same received-never-exceeds-ordered check as the database.
func (t *ProcurementTx) AddPOLineReceived(_ context.Context, lineID int64, qty decimal.Decimal) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, po := range t.repo.pos {
		for i, line := range po.Lines {
			if line.ID != lineID {
				continue
			}
			received := line.QtyReceived.Add(qty)
			if received.GreaterThan(line.Qty) {
				return fmt.Errorf("%w: po line %d received exceeds ordered", shared.ErrValidation, lineID)
			}
			po.Lines = slices.Clone(po.Lines)
			po.Lines[i].QtyReceived = received
			t.repo.pos[id] = po
			return nil
		}
	}
	return fmt.Errorf("%w: PO line %d", shared.ErrNotFound, lineID)
}

// CreateGRN implements procurement.TxRepository.
func (t *ProcurementTx) CreateGRN(_ context.Context, grn procurement.GoodsReceipt) (procurement.GoodsReceipt, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	grn.ID = t.NextID()
	lines := make([]procurement.GRNLine, len(grn.Lines))
	for i, line := range grn.Lines {
		line.ID = t.NextID()
		line.GRNID = grn.ID
		lines[i] = line
	}
	grn.Lines = lines
	t.repo.grns[grn.ID] = grn
	return grn, nil
}

// LockGRN implements procurement.TxRepository.
func (t *ProcurementTx) LockGRN(ctx context.Context, id int64) (procurement.GoodsReceipt, error) {
	return t.repo.GetGRN(ctx, id)
}

// UpdateGRNStatus implements procurement.TxRepository.
func (t *ProcurementTx) UpdateGRNStatus(_ context.Context, id int64, status procurement.GRNStatus, postedAt *time.Time) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	grn, ok := t.repo.grns[id]
	if !ok {
		return fmt.Errorf("%w: goods receipt %d", shared.ErrNotFound, id)
	}
	grn.Status = status
	if postedAt != nil {
		grn.PostedAt = postedAt
	}
	t.repo.grns[id] = grn
	return nil
}

// SetGRNLineLot implements procurement.TxRepository.
func (t *ProcurementTx) SetGRNLineLot(_ context.Context, lineID, lotID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for id, grn := range t.repo.grns {
		for i, line := range grn.Lines {
			if line.ID == lineID {
				grn.Lines = slices.Clone(grn.Lines)
				grn.Lines[i].LotID = lotID
				t.repo.grns[id] = grn
				return nil
			}
		}
	}
	return fmt.Errorf("%w: GRN line %d", shared.ErrNotFound, lineID)
}

// UpdateLastCost implements procurement.TxRepository.
func (t *ProcurementTx) UpdateLastCost(_ context.Context, productID int64, cost decimal.Decimal) error {
	if t.repo.Catalog != nil {
		t.repo.Catalog.SetLastCost(productID, cost)
	}
	return nil
}

var (
	_ procurement.RepositoryPort = (*Procurement)(nil)
	_ procurement.TxRepository   = (*ProcurementTx)(nil)
)
