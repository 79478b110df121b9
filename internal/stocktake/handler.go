package stocktake

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler wires HTTP endpoints for stock takes.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the stock take handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock take routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleAction(func(ctx context.Context, actor shared.Actor, id int64, _ string) (StockTake, error) {
		return h.service.Get(ctx, actor, id)
	}))
	r.Post("/{id}/start", h.handleAction(simple(h.service.Start)))
	r.Post("/{id}/counts", h.handleCounts)
	r.Post("/{id}/complete", h.handleAction(simple(h.service.Complete)))
	r.Post("/{id}/recount", h.handleAction(simple(h.service.Recount)))
	r.Post("/{id}/approve", h.handleAction(simple(h.service.Approve)))
	r.Post("/{id}/cancel", h.handleAction(h.service.Cancel))
}

type createRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Note        string `json:"note" validate:"max=500"`
}

type countRequest struct {
	LineID     int64           `json:"line_id" validate:"gte=0"`
	ProductID  int64           `json:"product_id" validate:"gte=0"`
	VariantID  int64           `json:"variant_id" validate:"gte=0"`
	LocationID int64           `json:"location_id" validate:"gte=0"`
	LotID      int64           `json:"lot_id" validate:"gte=0"`
	Qty        decimal.Decimal `json:"qty"`
}

type countsRequest struct {
	Counts []countRequest `json:"counts" validate:"required,min=1,dive"`
}

type actionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type actionFunc func(ctx context.Context, actor shared.Actor, id int64, reason string) (StockTake, error)

func simple(fn func(context.Context, shared.Actor, int64) (StockTake, error)) actionFunc {
	return func(ctx context.Context, actor shared.Actor, id int64, _ string) (StockTake, error) {
		return fn(ctx, actor, id)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Create(r.Context(), actor, CreateInput{WarehouseID: req.WarehouseID, Note: req.Note})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("stock take created", slog.Int64("id", st.ID), slog.String("number", st.Number))
	httpx.JSON(w, http.StatusCreated, st)
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req countsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	counts := make([]Count, 0, len(req.Counts))
	for _, c := range req.Counts {
		counts = append(counts, Count{
			LineID:     c.LineID,
			ProductID:  c.ProductID,
			VariantID:  c.VariantID,
			LocationID: c.LocationID,
			LotID:      c.LotID,
			Qty:        c.Qty,
		})
	}
	st, err := h.service.RecordCounts(r.Context(), actor, id, counts)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	takes, err := h.service.List(r.Context(), actor, ListFilter{
		Status:      Status(r.URL.Query().Get("status")),
		WarehouseID: warehouseID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock_takes": takes})
}

func (h *Handler) handleAction(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := httpx.Actor(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req actionRequest
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		st, err := fn(r.Context(), actor, id, req.Reason)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, st)
	}
}
