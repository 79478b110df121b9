package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/audit"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type stubTimelineService struct {
	events      []shared.DocumentEvent
	lastFilters audit.TimelineFilters
	lastDoc     shared.DocType
}

func (s *stubTimelineService) Document(ctx context.Context, actor shared.Actor, docType shared.DocType, docID int64) ([]shared.DocumentEvent, error) {
	s.lastDoc = docType
	if !audit.KnownDocType(docType) {
		return nil, shared.ErrValidation
	}
	return s.events, nil
}

func (s *stubTimelineService) Timeline(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return audit.Result{Rows: s.events, Paging: audit.PagingInfo{Page: filters.Page}}, nil
}

func (s *stubTimelineService) Export(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) ([]shared.DocumentEvent, error) {
	s.lastFilters = filters
	return s.events, nil
}

func newRouter(service TimelineService) http.Handler {
	h := NewHandler(nil, service)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 1, Permissions: []string{shared.PermAuditView}})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/documents", h.MountDocumentRoutes)
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestDocumentTimeline(t *testing.T) {
	svc := &stubTimelineService{events: []shared.DocumentEvent{{ID: 1, Action: "create", DocType: shared.DocGoodsReceipt, DocID: 5, ToStatus: "DRAFT"}}}
	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/grn/5/events", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastDoc != shared.DocGoodsReceipt {
		t.Fatalf("expected doc type GRN, got %q", svc.lastDoc)
	}
	var body struct {
		Events []shared.DocumentEvent `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Action != "create" {
		t.Fatalf("unexpected events %+v", body.Events)
	}
}

func TestDocumentTimelineRejectsBadInput(t *testing.T) {
	svc := &stubTimelineService{}
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/PO/abc/events", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/INV/1/events", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rr.Code)
	}
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &stubTimelineService{}
	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/events?doc_type=po&actor_id=7&from=2024-03-01&to=2024-03-31&page=2", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	f := svc.lastFilters
	if f.DocType != shared.DocPurchaseOrder || f.ActorID != 7 || f.Page != 2 {
		t.Fatalf("unexpected filters %+v", f)
	}
	if !f.To.After(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected inclusive end of day, got %v", f.To)
	}

	rr = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/events?from=03-01-2024", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	svc := &stubTimelineService{events: []shared.DocumentEvent{{ID: 1, Action: "post", DocType: shared.DocStockMovement, DocID: 3, DocNumber: "MV-000003", ToStatus: "POSTED"}}}
	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/events/export.csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "MV-000003") {
		t.Fatalf("expected movement row, got %q", rr.Body.String())
	}
}

func TestDocumentExportCSV(t *testing.T) {
	svc := &stubTimelineService{events: []shared.DocumentEvent{{ID: 1, Action: "post", DocType: shared.DocStockMovement, DocID: 9, DocNumber: "MV-0009", ToStatus: "POSTED"}}}
	rr := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/mv/9/events/export.csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastDoc != shared.DocStockMovement {
		t.Fatalf("expected MV, got %s", svc.lastDoc)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "mv-9-events.csv") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.Contains(rr.Body.String(), "MV-0009") {
		t.Fatalf("expected document number in csv, got %q", rr.Body.String())
	}
}

func TestExportIsRateLimitedPerUser(t *testing.T) {
	router := newRouter(&stubTimelineService{})
	var last int
	for i := 0; i <= exportRateLimit; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/events/export.csv", nil))
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d exports, got %d", exportRateLimit, last)
	}
}
