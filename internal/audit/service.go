package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	exportLimit     = 10000
)

// Repository membaca event dokumen.
type Repository interface {
	QueryEvents(ctx context.Context, q Query) ([]shared.DocumentEvent, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Document returns every event of one document, oldest first. Holders of
// audit.view, or of the view permission of the document family, may read it.
func (s *Service) Document(ctx context.Context, actor shared.Actor, docType shared.DocType, docID int64) ([]shared.DocumentEvent, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if !KnownDocType(docType) {
		return nil, fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, docType)
	}
	if docID <= 0 {
		return nil, fmt.Errorf("%w: document id required", shared.ErrValidation)
	}
	if !canViewDocument(actor, docType) {
		return nil, fmt.Errorf("%w: cannot view %s events", shared.ErrPermissionDenied, docType)
	}
	return s.repo.QueryEvents(ctx, Query{DocType: docType, DocID: docID, Limit: exportLimit})
}

// Timeline mengambil event lintas dokumen dengan paging, terbaru dulu.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if err := checkFilters(actor, filters); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := toQuery(filters)
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize + 1
	rows, err := s.repo.QueryEvents(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export mengambil seluruh data timeline tanpa paging, dibatasi exportLimit.
func (s *Service) Export(ctx context.Context, actor shared.Actor, filters TimelineFilters) ([]shared.DocumentEvent, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if err := checkFilters(actor, filters); err != nil {
		return nil, err
	}
	q := toQuery(filters)
	q.Limit = exportLimit
	return s.repo.QueryEvents(ctx, q)
}

// KnownDocType reports whether docType is a document family of this system.
func KnownDocType(docType shared.DocType) bool {
	switch docType {
	case shared.DocPurchaseRequest, shared.DocPurchaseOrder, shared.DocGoodsReceipt,
		shared.DocStockMovement, shared.DocStockTake, shared.DocAdjustment:
		return true
	}
	return false
}

func checkFilters(actor shared.Actor, filters TimelineFilters) error {
	if !actor.Can(shared.PermAuditView) {
		return fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, shared.PermAuditView)
	}
	if filters.DocType != "" && !KnownDocType(filters.DocType) {
		return fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, filters.DocType)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return fmt.Errorf("%w: from is after to", shared.ErrValidation)
	}
	return nil
}

func toQuery(filters TimelineFilters) Query {
	return Query{
		DocType: filters.DocType,
		DocID:   filters.DocID,
		ActorID: filters.ActorID,
		Action:  strings.TrimSpace(filters.Action),
		From:    filters.From,
		To:      filters.To,
	}
}

func canViewDocument(actor shared.Actor, docType shared.DocType) bool {
	if actor.Can(shared.PermAuditView) {
		return true
	}
	switch docType {
	case shared.DocPurchaseRequest, shared.DocPurchaseOrder, shared.DocGoodsReceipt:
		for _, perm := range shared.ProcurementScopes() {
			if actor.Can(perm) {
				return true
			}
		}
		return false
	default:
		return actor.Can(shared.PermInventoryView)
	}
}
