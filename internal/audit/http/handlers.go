package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/audit"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Document(ctx context.Context, actor shared.Actor, docType shared.DocType, docID int64) ([]shared.DocumentEvent, error)
	Timeline(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) ([]shared.DocumentEvent, error)
}

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	events, ok := h.documentEvents(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleDocumentExport(w http.ResponseWriter, r *http.Request) {
	events, ok := h.documentEvents(w, r)
	if !ok {
		return
	}
	name := strings.ToLower(chi.URLParam(r, "docType")) + "-" + chi.URLParam(r, "id") + "-events.csv"
	h.writeCSV(w, events, name)
}

// documentEvents loads the timeline of the document named by the URL. It
// writes the error response itself and reports false on failure.
func (h *Handler) documentEvents(w http.ResponseWriter, r *http.Request) ([]shared.DocumentEvent, bool) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	docType := shared.DocType(strings.ToUpper(chi.URLParam(r, "docType")))
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	events, err := h.service.Document(r.Context(), actor, docType, id)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	if events == nil {
		events = []shared.DocumentEvent{}
	}
	return events, true
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.writeCSV(w, rows, "document-events.csv")
}

func (h *Handler) writeCSV(w http.ResponseWriter, rows []shared.DocumentEvent, filename string) {
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		DocType: shared.DocType(strings.ToUpper(strings.TrimSpace(q.Get("doc_type")))),
		Action:  q.Get("action"),
	}
	var err error
	if filters.DocID, err = httpx.QueryInt64(r, "doc_id"); err != nil {
		return filters, err
	}
	if filters.ActorID, err = httpx.QueryInt64(r, "actor_id"); err != nil {
		return filters, err
	}
	if filters.From, err = httpx.QueryDate(r, "from", false); err != nil {
		return filters, err
	}
	if filters.To, err = httpx.QueryDate(r, "to", true); err != nil {
		return filters, err
	}
	filters.Page = atoiDefault(q.Get("page"), 1)
	filters.PageSize = atoiDefault(q.Get("page_size"), 0)
	return filters, nil
}

func atoiDefault(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}
