package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Page        int
	Limit       int
	Search      string
	WarehouseID int64
}

// TrackingMode tells the ledger whether a product is physically stocked.
type TrackingMode string

const (
	TrackingStocked     TrackingMode = "STOCKED"
	TrackingMadeToOrder TrackingMode = "MADE_TO_ORDER"
	TrackingDropShip    TrackingMode = "DROP_SHIP"
)

// Valid reports whether m is a known tracking mode.
func (m TrackingMode) Valid() bool {
	switch m {
	case TrackingStocked, TrackingMadeToOrder, TrackingDropShip:
		return true
	}
	return false
}

// Product represents a product entity. A product with variants is stocked
// only through its variants.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	UOM          string          `json:"uom"`
	TrackingMode TrackingMode    `json:"tracking_mode"`
	HasVariants  bool            `json:"has_variants"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	MinQty       decimal.Decimal `json:"min_qty"`
	MaxQty       decimal.Decimal `json:"max_qty"`
	StandardCost decimal.Decimal `json:"standard_cost"`
	LastCost     decimal.Decimal `json:"last_cost"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Variant is one SKU-level option combination of a product.
type Variant struct {
	ID        int64      `json:"id"`
	ProductID int64      `json:"product_id"`
	SKU       string     `json:"sku"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Warehouse represents a warehouse entity.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a zone/rack/shelf inside exactly one warehouse. Stock is only
// ever held at a location.
type Location struct {
	ID          int64     `json:"id"`
	WarehouseID int64     `json:"warehouse_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Zone        string    `json:"zone"`
	Rack        string    `json:"rack"`
	Shelf       string    `json:"shelf"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Supplier represents a supplier entity.
type Supplier struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Email     string     `json:"email"`
	IsActive  bool       `json:"is_active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Catalog is the read-only view other modules use to resolve references.
// Lookups of unknown ids return shared.ErrNotFound.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetVariant(ctx context.Context, id int64) (Variant, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	// FindSKU resolves a product or variant SKU. The variant is zero for a
	// product SKU.
	FindSKU(ctx context.Context, sku string) (Product, Variant, error)
	FindLocationCode(ctx context.Context, code string) (Location, error)
}

// Repository interface for master data operations.
type Repository interface {
	Catalog

	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	CreateVariant(ctx context.Context, variant Variant) (Variant, error)
	SoftDeleteProduct(ctx context.Context, id int64, at time.Time) error

	ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error)

	ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error)
	CreateLocation(ctx context.Context, location Location) (Location, error)

	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	SoftDeleteSupplier(ctx context.Context, id int64, at time.Time) error
}
