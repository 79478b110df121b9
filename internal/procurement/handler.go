package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/batch"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler manages procurement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	batch     *batch.Operator
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, op *batch.Operator) *Handler {
	return &Handler{logger: logger, service: service, batch: op, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Get("/", h.handleListPRs)
		r.Post("/", h.handleCreatePR)
		r.Get("/{id}", getHandler(h.service.GetPR))
		r.Post("/{id}/submit", actionHandler(simple(h.service.SubmitPR)))
		r.Post("/{id}/approve", actionHandler(simple(h.service.ApprovePR)))
		r.Post("/{id}/reject", actionHandler(h.service.RejectPR))
		r.Post("/{id}/cancel", actionHandler(h.service.CancelPR))
		r.Post("/{id}/convert", h.handleConvert)
		r.Post("/batch/approve", h.batch.Handler(item(simple(h.service.ApprovePR))))
		r.Post("/batch/reject", h.batch.Handler(item(h.service.RejectPR)))
		r.Post("/batch/cancel", h.batch.Handler(item(h.service.CancelPR)))
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.handleListPOs)
		r.Post("/", h.handleCreatePO)
		r.Get("/{id}", getHandler(h.service.GetPO))
		r.Post("/{id}/submit", actionHandler(simple(h.service.SubmitPO)))
		r.Post("/{id}/approve", actionHandler(simple(h.service.ApprovePO)))
		r.Post("/{id}/reject", actionHandler(h.service.RejectPO))
		r.Post("/{id}/send", actionHandler(simple(h.service.SendPO)))
		r.Post("/{id}/start", actionHandler(simple(h.service.StartPO)))
		r.Post("/{id}/close", actionHandler(simple(h.service.ClosePO)))
		r.Post("/{id}/cancel", actionHandler(h.service.CancelPO))
		r.Post("/batch/approve", h.batch.Handler(item(simple(h.service.ApprovePO))))
		r.Post("/batch/reject", h.batch.Handler(item(h.service.RejectPO)))
		r.Post("/batch/send", h.batch.Handler(item(simple(h.service.SendPO))))
		r.Post("/batch/cancel", h.batch.Handler(item(h.service.CancelPO)))
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", h.handleListGRNs)
		r.Post("/", h.handleCreateGRN)
		r.Get("/{id}", getHandler(h.service.GetGRN))
		r.Post("/{id}/post", actionHandler(simple(h.service.PostGoodsReceipt)))
		r.Post("/{id}/cancel", actionHandler(h.service.CancelGoodsReceipt))
		r.Post("/batch/post", h.batch.Handler(item(simple(h.service.PostGoodsReceipt))))
	})
}

type prLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	VariantID int64           `json:"variant_id" validate:"gte=0"`
	Qty       decimal.Decimal `json:"qty"`
	Note      string          `json:"note" validate:"max=500"`
}

type createPRRequest struct {
	Note  string          `json:"note" validate:"max=500"`
	Lines []prLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type poLineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	VariantID int64           `json:"variant_id" validate:"gte=0"`
	Qty       decimal.Decimal `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Note      string          `json:"note" validate:"max=500"`
}

type createPORequest struct {
	SupplierID   int64           `json:"supplier_id" validate:"required,gt=0"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	ExpectedDate *time.Time      `json:"expected_date"`
	Note         string          `json:"note" validate:"max=500"`
	Lines        []poLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type allocationLineRequest struct {
	PRLineID  int64           `json:"pr_line_id" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type allocationRequest struct {
	SupplierID   int64                   `json:"supplier_id" validate:"required,gt=0"`
	Currency     string                  `json:"currency" validate:"omitempty,len=3"`
	ExpectedDate *time.Time              `json:"expected_date"`
	Note         string                  `json:"note" validate:"max=500"`
	Lines        []allocationLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type convertRequest struct {
	Allocations []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

type grnLineRequest struct {
	POLineID         int64           `json:"po_line_id" validate:"required,gt=0"`
	LocationID       int64           `json:"location_id" validate:"required,gt=0"`
	Qty              decimal.Decimal `json:"qty"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LotNumber        string          `json:"lot_number" validate:"max=64"`
	ExpiryDate       *time.Time      `json:"expiry_date"`
	ManufacturedDate *time.Time      `json:"manufactured_date"`
}

type createGRNRequest struct {
	POID       int64            `json:"po_id" validate:"required,gt=0"`
	ReceivedAt time.Time        `json:"received_at"`
	Note       string           `json:"note" validate:"max=500"`
	Lines      []grnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type actionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type actionFunc[T any] func(ctx context.Context, actor shared.Actor, id int64, reason string) (T, error)

func simple[T any](fn func(context.Context, shared.Actor, int64) (T, error)) actionFunc[T] {
	return func(ctx context.Context, actor shared.Actor, id int64, _ string) (T, error) {
		return fn(ctx, actor, id)
	}
}

func item[T any](fn actionFunc[T]) batch.ItemFunc {
	return func(ctx context.Context, actor shared.Actor, id int64, reason string) error {
		_, err := fn(ctx, actor, id, reason)
		return err
	}
}

func actionHandler[T any](fn actionFunc[T]) http.HandlerFunc {
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
		doc, err := fn(r.Context(), actor, id, req.Reason)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func getHandler[T any](fn func(context.Context, shared.Actor, int64) (T, error)) http.HandlerFunc {
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
		doc, err := fn(r.Context(), actor, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

// decode reads the actor and a validated JSON body.
func (h *Handler) decode(r *http.Request, target any) (shared.Actor, error) {
	actor, err := httpx.Actor(r)
	if err != nil {
		return shared.Actor{}, err
	}
	if err := httpx.DecodeJSON(r, target); err != nil {
		return shared.Actor{}, err
	}
	if err := h.validator.Struct(target); err != nil {
		return shared.Actor{}, err
	}
	return actor, nil
}

func (h *Handler) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	var req createPRRequest
	actor, err := h.decode(r, &req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreatePRInput{Note: req.Note}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, PRLineInput{ProductID: l.ProductID, VariantID: l.VariantID, Qty: l.Qty, Note: l.Note})
	}
	pr, err := h.service.CreatePurchaseRequest(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("purchase request created", slog.Int64("id", pr.ID), slog.String("number", pr.Number))
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	actor, err := h.decode(r, &req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreatePOInput{SupplierID: req.SupplierID, Currency: req.Currency, ExpectedDate: req.ExpectedDate, Note: req.Note}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, POLineInput{ProductID: l.ProductID, VariantID: l.VariantID, Qty: l.Qty, UnitPrice: l.UnitPrice, Note: l.Note})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("purchase order created", slog.Int64("id", po.ID), slog.String("number", po.Number))
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req convertRequest
	actor, err := h.decode(r, &req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	allocations := make([]SupplierAllocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		alloc := SupplierAllocation{SupplierID: a.SupplierID, Currency: a.Currency, ExpectedDate: a.ExpectedDate, Note: a.Note}
		for _, l := range a.Lines {
			alloc.Lines = append(alloc.Lines, AllocatedLine{PRLineID: l.PRLineID, UnitPrice: l.UnitPrice})
		}
		allocations = append(allocations, alloc)
	}
	orders, err := h.service.ConvertToPurchaseOrders(r.Context(), actor, id, allocations)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchase_orders": orders})
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	actor, err := h.decode(r, &req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateGRNInput{POID: req.POID, ReceivedAt: req.ReceivedAt, Note: req.Note}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, GRNLineInput{
			POLineID:         l.POLineID,
			LocationID:       l.LocationID,
			Qty:              l.Qty,
			UnitCost:         l.UnitCost,
			LotNumber:        l.LotNumber,
			ExpiryDate:       l.ExpiryDate,
			ManufacturedDate: l.ManufacturedDate,
		})
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("goods receipt created", slog.Int64("id", grn.ID), slog.String("number", grn.Number))
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) handleListPRs(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	prs, err := h.service.ListPRs(r.Context(), actor, listFilter(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_requests": prs})
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pos, err := h.service.ListPOs(r.Context(), actor, listFilter(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": pos})
}

func (h *Handler) handleListGRNs(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grns, err := h.service.ListGRNs(r.Context(), actor, listFilter(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"goods_receipts": grns})
}

func listFilter(r *http.Request) ListFilter {
	filter := ListFilter{Status: r.URL.Query().Get("status")}
	if limit, err := httpx.QueryInt64(r, "limit"); err == nil {
		filter.Limit = int(limit)
	}
	return filter
}
