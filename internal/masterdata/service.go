package masterdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

var upper = cases.Upper(language.Und)

// NormalizeCode canonicalises SKUs and location/warehouse/supplier codes:
// NFKC-folded, trimmed and upper-cased so lookups from external systems match.
func NormalizeCode(code string) string {
	return upper.String(norm.NFKC.String(strings.TrimSpace(code)))
}

// Service handles master data business logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new master data service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Catalog exposes the read side to other modules.
func (s *Service) Catalog() Catalog {
	return s.repo
}

// ListProducts lists active products.
func (s *Service) ListProducts(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Product, int, error) {
	if err := authorize(actor, shared.PermMasterDataView); err != nil {
		return nil, 0, err
	}
	return s.repo.ListProducts(ctx, filters)
}

// CreateProduct validates and stores a product.
func (s *Service) CreateProduct(ctx context.Context, actor shared.Actor, p Product) (Product, error) {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return Product{}, err
	}
	p.SKU = NormalizeCode(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	p.UOM = NormalizeCode(p.UOM)
	if p.UOM == "" {
		p.UOM = "PCS"
	}
	if p.TrackingMode == "" {
		p.TrackingMode = TrackingStocked
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	return s.repo.CreateProduct(ctx, p)
}

func validateProduct(p Product) error {
	switch {
	case p.SKU == "":
		return fmt.Errorf("%w: sku required", shared.ErrValidation)
	case p.Name == "":
		return fmt.Errorf("%w: name required", shared.ErrValidation)
	case !p.TrackingMode.Valid():
		return fmt.Errorf("%w: unknown tracking mode %q", shared.ErrValidation, p.TrackingMode)
	}
	for name, v := range map[string]interface{ IsNegative() bool }{
		"reorder_point": p.ReorderPoint,
		"min_qty":       p.MinQty,
		"max_qty":       p.MaxQty,
		"standard_cost": p.StandardCost,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", shared.ErrValidation, name)
		}
	}
	if p.MaxQty.IsPositive() && p.MaxQty.LessThan(p.MinQty) {
		return fmt.Errorf("%w: max_qty below min_qty", shared.ErrValidation)
	}
	return nil
}

// CreateVariant adds a variant to a product declared with variants.
func (s *Service) CreateVariant(ctx context.Context, actor shared.Actor, v Variant) (Variant, error) {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return Variant{}, err
	}
	v.SKU = NormalizeCode(v.SKU)
	v.Name = strings.TrimSpace(v.Name)
	if v.SKU == "" || v.Name == "" {
		return Variant{}, fmt.Errorf("%w: sku and name required", shared.ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, v.ProductID)
	if err != nil {
		return Variant{}, err
	}
	if product.DeletedAt != nil {
		return Variant{}, fmt.Errorf("%w: product %s is deleted", shared.ErrValidation, product.SKU)
	}
	if !product.HasVariants {
		return Variant{}, fmt.Errorf("%w: product %s has no variants", shared.ErrValidation, product.SKU)
	}
	return s.repo.CreateVariant(ctx, v)
}

// DeleteProduct soft-deletes a product.
func (s *Service) DeleteProduct(ctx context.Context, actor shared.Actor, id int64) error {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return err
	}
	return s.repo.SoftDeleteProduct(ctx, id, s.now().UTC())
}

// ListWarehouses lists warehouses.
func (s *Service) ListWarehouses(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Warehouse, int, error) {
	if err := authorize(actor, shared.PermMasterDataView); err != nil {
		return nil, 0, err
	}
	return s.repo.ListWarehouses(ctx, filters)
}

// CreateWarehouse validates and stores a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, actor shared.Actor, w Warehouse) (Warehouse, error) {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return Warehouse{}, err
	}
	w.Code = NormalizeCode(w.Code)
	w.Name = strings.TrimSpace(w.Name)
	if w.Code == "" || w.Name == "" {
		return Warehouse{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	w.IsActive = true
	return s.repo.CreateWarehouse(ctx, w)
}

// ListLocations lists locations.
func (s *Service) ListLocations(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Location, int, error) {
	if err := authorize(actor, shared.PermMasterDataView); err != nil {
		return nil, 0, err
	}
	return s.repo.ListLocations(ctx, filters)
}

// CreateLocation validates and stores a location inside an existing warehouse.
func (s *Service) CreateLocation(ctx context.Context, actor shared.Actor, l Location) (Location, error) {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return Location{}, err
	}
	l.Code = NormalizeCode(l.Code)
	l.Name = strings.TrimSpace(l.Name)
	if l.Code == "" || l.Name == "" {
		return Location{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	warehouse, err := s.repo.GetWarehouse(ctx, l.WarehouseID)
	if err != nil {
		return Location{}, err
	}
	if !warehouse.IsActive {
		return Location{}, fmt.Errorf("%w: warehouse %s inactive", shared.ErrValidation, warehouse.Code)
	}
	l.IsActive = true
	return s.repo.CreateLocation(ctx, l)
}

// ListSuppliers lists active suppliers.
func (s *Service) ListSuppliers(ctx context.Context, actor shared.Actor, filters ListFilters) ([]Supplier, int, error) {
	if err := authorize(actor, shared.PermMasterDataView); err != nil {
		return nil, 0, err
	}
	return s.repo.ListSuppliers(ctx, filters)
}

// CreateSupplier validates and stores a supplier.
func (s *Service) CreateSupplier(ctx context.Context, actor shared.Actor, sup Supplier) (Supplier, error) {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return Supplier{}, err
	}
	sup.Code = NormalizeCode(sup.Code)
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.ToLower(strings.TrimSpace(sup.Email))
	if sup.Code == "" || sup.Name == "" {
		return Supplier{}, fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	sup.IsActive = true
	return s.repo.CreateSupplier(ctx, sup)
}

// DeleteSupplier soft-deletes a supplier.
func (s *Service) DeleteSupplier(ctx context.Context, actor shared.Actor, id int64) error {
	if err := authorize(actor, shared.PermMasterDataEdit); err != nil {
		return err
	}
	return s.repo.SoftDeleteSupplier(ctx, id, s.now().UTC())
}

// StockItem is a resolved, stockable product reference.
type StockItem struct {
	Product Product
	Variant Variant
}

// ResolveStockable loads a product (and variant) and checks that stock can
// move for it: the product exists, is not deleted, is STOCKED, and the variant
// is given exactly when the product has variants.
func ResolveStockable(ctx context.Context, catalog Catalog, productID, variantID int64) (StockItem, error) {
	product, err := catalog.GetProduct(ctx, productID)
	if err != nil {
		return StockItem{}, err
	}
	if product.DeletedAt != nil {
		return StockItem{}, fmt.Errorf("%w: product %s is deleted", shared.ErrValidation, product.SKU)
	}
	if product.TrackingMode != TrackingStocked {
		return StockItem{}, fmt.Errorf("%w: product %s is not stocked (%s)", shared.ErrValidation, product.SKU, product.TrackingMode)
	}
	item := StockItem{Product: product}
	switch {
	case product.HasVariants && variantID == 0:
		return StockItem{}, fmt.Errorf("%w: product %s requires a variant", shared.ErrValidation, product.SKU)
	case !product.HasVariants && variantID != 0:
		return StockItem{}, fmt.Errorf("%w: product %s has no variants", shared.ErrValidation, product.SKU)
	case variantID != 0:
		variant, err := catalog.GetVariant(ctx, variantID)
		if err != nil {
			return StockItem{}, err
		}
		if variant.ProductID != product.ID {
			return StockItem{}, fmt.Errorf("%w: variant %d does not belong to product %s", shared.ErrValidation, variantID, product.SKU)
		}
		if variant.DeletedAt != nil {
			return StockItem{}, fmt.Errorf("%w: variant %s is deleted", shared.ErrValidation, variant.SKU)
		}
		item.Variant = variant
	}
	return item, nil
}

// ResolveLocation loads an active location.
func ResolveLocation(ctx context.Context, catalog Catalog, locationID int64) (Location, error) {
	if locationID == 0 {
		return Location{}, fmt.Errorf("%w: location required", shared.ErrValidation)
	}
	loc, err := catalog.GetLocation(ctx, locationID)
	if err != nil {
		return Location{}, err
	}
	if !loc.IsActive {
		return Location{}, fmt.Errorf("%w: location %s inactive", shared.ErrValidation, loc.Code)
	}
	return loc, nil
}

func authorize(actor shared.Actor, perm string) error {
	if !actor.Can(perm) {
		return fmt.Errorf("%w: requires %s", shared.ErrPermissionDenied, perm)
	}
	return nil
}
