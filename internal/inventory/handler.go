package inventory

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

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.handleBalances)
	r.Get("/card", h.handleStockCard)
	r.Get("/lots", h.handleLots)
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/release", h.handleRelease)
}

type reservationRequest struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	VariantID  int64           `json:"variant_id" validate:"gte=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	LotID      int64           `json:"lot_id" validate:"gte=0"`
	Qty        decimal.Decimal `json:"qty"`
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var filter BalanceFilter
	for name, dst := range map[string]*int64{
		"product_id":   &filter.ProductID,
		"variant_id":   &filter.VariantID,
		"location_id":  &filter.LocationID,
		"warehouse_id": &filter.WarehouseID,
		"lot_id":       &filter.LotID,
	} {
		if *dst, err = httpx.QueryInt64(r, name); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	filter.NonZero = r.URL.Query().Get("non_zero") == "true"
	balances, err := h.service.Balances(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var filter CardFilter
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.LocationID, err = httpx.QueryInt64(r, "location_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = httpx.QueryDate(r, "from", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to", true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.StockCard(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Debug("stock card", slog.Int("count", len(entries)), slog.Int64("product_id", filter.ProductID))
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var filter LotFilter
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.ExpiringBefore, err = httpx.QueryDate(r, "expiring_before", false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lots, err := h.service.Lots(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, apply func(context.Context, shared.Actor, ReservationInput) (Balance, error)) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := apply(r.Context(), actor, ReservationInput{
		Key: BalanceKey{ProductID: req.ProductID, VariantID: req.VariantID, LocationID: req.LocationID, LotID: req.LotID},
		Qty: req.Qty,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}
