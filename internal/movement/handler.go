package movement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/batch"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler wires HTTP endpoints for stock movements.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	batch     *batch.Operator
	validator *validator.Validate
}

// NewHandler constructs movement handler.
func NewHandler(logger *slog.Logger, service *Service, op *batch.Operator) *Handler {
	return &Handler{logger: logger, service: service, batch: op, validator: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/submit", h.handleAction(h.simple(h.service.Submit)))
	r.Post("/{id}/approve", h.handleAction(h.simple(h.service.Approve)))
	r.Post("/{id}/reject", h.handleAction(h.service.Reject))
	r.Post("/{id}/post", h.handleAction(h.simple(h.service.Post)))
	r.Post("/{id}/cancel", h.handleAction(h.service.Cancel))

	r.Post("/batch/approve", h.batch.Handler(h.item(h.simple(h.service.Approve))))
	r.Post("/batch/reject", h.batch.Handler(h.item(h.service.Reject)))
	r.Post("/batch/cancel", h.batch.Handler(h.item(h.service.Cancel)))
	r.Post("/batch/post", h.batch.Handler(h.item(h.simple(h.service.Post))))
}

type lineRequest struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	VariantID      int64           `json:"variant_id" validate:"gte=0"`
	LotID          int64           `json:"lot_id" validate:"gte=0"`
	FromLocationID int64           `json:"from_location_id" validate:"gte=0"`
	ToLocationID   int64           `json:"to_location_id" validate:"gte=0"`
	Qty            decimal.Decimal `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Note           string          `json:"note" validate:"max=500"`
}

type createRequest struct {
	Type  inventory.MovementType `json:"type" validate:"required,oneof=RECEIVE ISSUE TRANSFER ADJUST"`
	Note  string                 `json:"note" validate:"max=500"`
	Lines []lineRequest          `json:"lines" validate:"required,min=1,dive"`
}

type actionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type actionFunc func(ctx context.Context, actor shared.Actor, id int64, reason string) (Movement, error)

func (h *Handler) simple(fn func(context.Context, shared.Actor, int64) (Movement, error)) actionFunc {
	return func(ctx context.Context, actor shared.Actor, id int64, _ string) (Movement, error) {
		return fn(ctx, actor, id)
	}
}

func (h *Handler) item(fn actionFunc) batch.ItemFunc {
	return func(ctx context.Context, actor shared.Actor, id int64, reason string) error {
		_, err := fn(ctx, actor, id, reason)
		return err
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
	input := CreateInput{Type: req.Type, Note: req.Note}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, Line{
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			LotID:          l.LotID,
			FromLocationID: l.FromLocationID,
			ToLocationID:   l.ToLocationID,
			Qty:            l.Qty,
			UnitCost:       l.UnitCost,
			Note:           l.Note,
		})
	}
	m, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement created", slog.Int64("id", m.ID), slog.String("number", m.Number))
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
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
	m, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	movements, err := h.service.List(r.Context(), actor, ListFilter{
		Status: Status(q.Get("status")),
		Type:   inventory.MovementType(q.Get("type")),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
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
		if r.ContentLength != 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		m, err := fn(r.Context(), actor, id, req.Reason)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, m)
	}
}
