package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Post("/products/{id}/variants", h.createVariant)
	r.Delete("/products/{id}", h.deleteProduct)

	r.Get("/warehouses", h.listWarehouses)
	r.Post("/warehouses", h.createWarehouse)

	r.Get("/locations", h.listLocations)
	r.Post("/locations", h.createLocation)

	r.Get("/suppliers", h.listSuppliers)
	r.Post("/suppliers", h.createSupplier)
	r.Delete("/suppliers/{id}", h.deleteSupplier)
}

type productRequest struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	UOM          string          `json:"uom" validate:"max=16"`
	TrackingMode TrackingMode    `json:"tracking_mode"`
	HasVariants  bool            `json:"has_variants"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	MinQty       decimal.Decimal `json:"min_qty"`
	MaxQty       decimal.Decimal `json:"max_qty"`
	StandardCost decimal.Decimal `json:"standard_cost"`
}

type variantRequest struct {
	SKU  string `json:"sku" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type warehouseRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address"`
}

type locationRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=200"`
	Zone        string `json:"zone"`
	Rack        string `json:"rack"`
	Shelf       string `json:"shelf"`
}

type supplierRequest struct {
	Code  string `json:"code" validate:"required,max=32"`
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (h *Handler) filters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	return ListFilters{Page: page, Limit: limit, Search: q.Get("search"), WarehouseID: warehouseID}
}

func listResponse(key string, items any, filters ListFilters, total int) map[string]any {
	return map[string]any{
		key:          items,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	}
}

// decode reads and validates the request body into dst.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) (shared.Actor, bool) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return shared.Actor{}, false
	}
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return shared.Actor{}, false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := h.filters(r)
	products, total, err := h.service.ListProducts(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse("products", products, filters, total))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), actor, Product{
		SKU:          req.SKU,
		Name:         req.Name,
		UOM:          req.UOM,
		TrackingMode: req.TrackingMode,
		HasVariants:  req.HasVariants,
		ReorderPoint: req.ReorderPoint,
		MinQty:       req.MinQty,
		MaxQty:       req.MaxQty,
		StandardCost: req.StandardCost,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("product created", slog.Int64("product_id", product.ID), slog.String("sku", product.SKU))
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req variantRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	variant, err := h.service.CreateVariant(r.Context(), actor, Variant{ProductID: productID, SKU: req.SKU, Name: req.Name})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, variant)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteProduct(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := h.filters(r)
	warehouses, total, err := h.service.ListWarehouses(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse("warehouses", warehouses, filters, total))
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), actor, Warehouse{Code: req.Code, Name: req.Name, Address: req.Address})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := h.filters(r)
	locations, total, err := h.service.ListLocations(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse("locations", locations, filters, total))
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	location, err := h.service.CreateLocation(r.Context(), actor, Location{
		WarehouseID: req.WarehouseID,
		Code:        req.Code,
		Name:        req.Name,
		Zone:        req.Zone,
		Rack:        req.Rack,
		Shelf:       req.Shelf,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, location)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters := h.filters(r)
	suppliers, total, err := h.service.ListSuppliers(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse("suppliers", suppliers, filters, total))
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), actor, Supplier{Code: req.Code, Name: req.Name, Phone: req.Phone, Email: req.Email})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteSupplier(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
