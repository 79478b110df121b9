package erpsync

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// APIKeyHeader carries the ERP API key.
const APIKeyHeader = "X-API-Key"

// Handler exposes the ERP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	keys      *KeyChecker
	validator *validator.Validate
}

// NewHandler constructs the ERP handler.
func NewHandler(logger *slog.Logger, service *Service, keys *KeyChecker) *Handler {
	return &Handler{logger: logger, service: service, keys: keys, validator: validator.New()}
}

// MountRoutes registers ERP routes behind the API key check.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.requireKey)
	r.Post("/movements", h.handleMovement)
}

func (h *Handler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.keys.Valid(strings.TrimSpace(r.Header.Get(APIKeyHeader))) {
			h.logger.Warn("erp request rejected", slog.String("remote", r.RemoteAddr))
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type movementLineRequest struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	FromLocation string          `json:"from_location" validate:"max=64"`
	ToLocation   string          `json:"to_location" validate:"max=64"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Note         string          `json:"note" validate:"max=500"`
}

type movementRequest struct {
	Source    string                `json:"source" validate:"max=64"`
	Reference string                `json:"reference" validate:"required,max=128"`
	Type      string                `json:"type" validate:"required,oneof=RECEIVE ISSUE TRANSFER ADJUST"`
	Note      string                `json:"note" validate:"max=500"`
	Lines     []movementLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := Request{
		Source:    req.Source,
		Reference: req.Reference,
		Type:      inventory.MovementType(req.Type),
		Note:      req.Note,
		Lines:     make([]RequestLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, RequestLine{
			SKU:          l.SKU,
			FromLocation: l.FromLocation,
			ToLocation:   l.ToLocation,
			Qty:          l.Qty,
			UnitCost:     l.UnitCost,
			Note:         l.Note,
		})
	}
	result, err := h.service.SyncMovement(r.Context(), in)
	w.Header().Set("X-Correlation-ID", result.CorrelationID.String())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
