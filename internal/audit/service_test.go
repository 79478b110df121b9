package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type stubRepo struct {
	rows     []shared.DocumentEvent
	lastCall Query
}

func (s *stubRepo) QueryEvents(ctx context.Context, q Query) ([]shared.DocumentEvent, error) {
	s.lastCall = q
	if q.Limit > 0 && len(s.rows) > q.Limit {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func event(id int64, action string) shared.DocumentEvent {
	return shared.DocumentEvent{ID: id, Action: action, DocType: shared.DocPurchaseOrder, DocID: 9, ToStatus: "SENT", OccurredAt: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
}

var auditor = shared.Actor{ID: 1, Permissions: []string{shared.PermAuditView}}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: []shared.DocumentEvent{event(3, "send"), event(2, "approve"), event(1, "submit")}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), auditor, TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 || repo.lastCall.Offset != 0 {
		t.Fatalf("unexpected window %+v", repo.lastCall)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), auditor, TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize || result.Paging.PrevPage != 2 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastCall.Offset != 2*maxPageSize {
		t.Fatalf("unexpected offset %d", repo.lastCall.Offset)
	}
}

func TestServiceTimelineRequiresAuditView(t *testing.T) {
	svc := NewService(&stubRepo{})
	_, err := svc.Timeline(context.Background(), shared.Actor{ID: 2, Permissions: []string{shared.PermInventoryView}}, TimelineFilters{})
	if !errors.Is(err, shared.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	_, err = svc.Timeline(context.Background(), auditor, TimelineFilters{DocType: "INV"})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceDocumentPermissionFollowsFamily(t *testing.T) {
	repo := &stubRepo{rows: []shared.DocumentEvent{event(1, "create")}}
	svc := NewService(repo)
	buyer := shared.Actor{ID: 4, Permissions: []string{shared.PermPOSubmit}}
	clerk := shared.Actor{ID: 5, Permissions: []string{shared.PermInventoryView}}

	rows, err := svc.Document(context.Background(), buyer, shared.DocPurchaseOrder, 9)
	if err != nil || len(rows) != 1 {
		t.Fatalf("buyer timeline: rows=%d err=%v", len(rows), err)
	}
	if repo.lastCall.DocType != shared.DocPurchaseOrder || repo.lastCall.DocID != 9 {
		t.Fatalf("unexpected query %+v", repo.lastCall)
	}
	if _, err := svc.Document(context.Background(), clerk, shared.DocPurchaseOrder, 9); !errors.Is(err, shared.ErrPermissionDenied) {
		t.Fatalf("expected clerk denied, got %v", err)
	}
	if _, err := svc.Document(context.Background(), clerk, shared.DocStockMovement, 9); err != nil {
		t.Fatalf("clerk movement timeline: %v", err)
	}
	if _, err := svc.Document(context.Background(), auditor, shared.DocType("XX"), 9); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriteCSV(t *testing.T) {
	e := event(1, "reject")
	e.Reason = "price, too high"
	e.RelatedDocType = shared.DocPurchaseRequest
	e.RelatedDocID = 4
	out, err := WriteCSV([]shared.DocumentEvent{e})
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "occurred_at,actor_id,doc_type") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], `"price, too high",PR,4`) {
		t.Fatalf("unexpected row %q", lines[1])
	}
}
