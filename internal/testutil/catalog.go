package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Catalog is an in-memory masterdata.Catalog.
type Catalog struct {
	mu         sync.RWMutex
	nextID     int64
	products   map[int64]masterdata.Product
	variants   map[int64]masterdata.Variant
	warehouses map[int64]masterdata.Warehouse
	locations  map[int64]masterdata.Location
	suppliers  map[int64]masterdata.Supplier
}

// NewCatalog returns an empty catalog. Ids start at 1000 so they never
// collide with Store ids in assertions.
func NewCatalog() *Catalog {
	return &Catalog{
		nextID:     1000,
		products:   make(map[int64]masterdata.Product),
		variants:   make(map[int64]masterdata.Variant),
		warehouses: make(map[int64]masterdata.Warehouse),
		locations:  make(map[int64]masterdata.Location),
		suppliers:  make(map[int64]masterdata.Supplier),
	}
}

func (c *Catalog) id() int64 {
	c.nextID++
	return c.nextID
}

// AddProduct registers a product. Missing tracking mode defaults to STOCKED.
func (c *Catalog) AddProduct(p masterdata.Product) masterdata.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ID == 0 {
		p.ID = c.id()
	}
	if p.TrackingMode == "" {
		p.TrackingMode = masterdata.TrackingStocked
	}
	p.SKU = masterdata.NormalizeCode(p.SKU)
	c.products[p.ID] = p
	return p
}

// AddVariant registers a variant.
func (c *Catalog) AddVariant(v masterdata.Variant) masterdata.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.ID == 0 {
		v.ID = c.id()
	}
	v.SKU = masterdata.NormalizeCode(v.SKU)
	c.variants[v.ID] = v
	return v
}

// AddWarehouse registers an active warehouse.
func (c *Catalog) AddWarehouse(code string) masterdata.Warehouse {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := masterdata.Warehouse{ID: c.id(), Code: masterdata.NormalizeCode(code), Name: code, IsActive: true}
	c.warehouses[w.ID] = w
	return w
}

// DeactivateWarehouse marks the warehouse inactive.
func (c *Catalog) DeactivateWarehouse(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.warehouses[id]
	w.IsActive = false
	c.warehouses[id] = w
}

// AddLocation registers an active location in warehouseID.
func (c *Catalog) AddLocation(warehouseID int64, code string) masterdata.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := masterdata.Location{ID: c.id(), WarehouseID: warehouseID, Code: masterdata.NormalizeCode(code), Name: code, IsActive: true}
	c.locations[l.ID] = l
	return l
}

// AddSupplier registers an active supplier.
func (c *Catalog) AddSupplier(code string) masterdata.Supplier {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := masterdata.Supplier{ID: c.id(), Code: masterdata.NormalizeCode(code), Name: code, IsActive: true}
	c.suppliers[s.ID] = s
	return s
}

// Product returns the product with id, zero when absent.
func (c *Catalog) Product(id int64) masterdata.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products[id]
}

// SetLastCost records the last purchase cost of a product.
func (c *Catalog) SetLastCost(id int64, cost decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.products[id]
	p.LastCost = cost
	c.products[id] = p
}

// GetProduct implements masterdata.Catalog.
func (c *Catalog) GetProduct(_ context.Context, id int64) (masterdata.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return masterdata.Product{}, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return p, nil
}

// GetVariant implements masterdata.Catalog.
func (c *Catalog) GetVariant(_ context.Context, id int64) (masterdata.Variant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variants[id]
	if !ok {
		return masterdata.Variant{}, fmt.Errorf("%w: variant %d", shared.ErrNotFound, id)
	}
	return v, nil
}

// GetWarehouse implements masterdata.Catalog.
func (c *Catalog) GetWarehouse(_ context.Context, id int64) (masterdata.Warehouse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.warehouses[id]
	if !ok {
		return masterdata.Warehouse{}, fmt.Errorf("%w: warehouse %d", shared.ErrNotFound, id)
	}
	return w, nil
}

// GetLocation implements masterdata.Catalog.
func (c *Catalog) GetLocation(_ context.Context, id int64) (masterdata.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.locations[id]
	if !ok {
		return masterdata.Location{}, fmt.Errorf("%w: location %d", shared.ErrNotFound, id)
	}
	return l, nil
}

// GetSupplier implements masterdata.Catalog.
func (c *Catalog) GetSupplier(_ context.Context, id int64) (masterdata.Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.suppliers[id]
	if !ok {
		return masterdata.Supplier{}, fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
	}
	return s, nil
}

// FindSKU implements masterdata.Catalog.
func (c *Catalog) FindSKU(_ context.Context, sku string) (masterdata.Product, masterdata.Variant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.SKU == sku && p.DeletedAt == nil {
			return p, masterdata.Variant{}, nil
		}
	}
	for _, v := range c.variants {
		if v.SKU == sku && v.DeletedAt == nil {
			return c.products[v.ProductID], v, nil
		}
	}
	return masterdata.Product{}, masterdata.Variant{}, fmt.Errorf("%w: sku %q", shared.ErrNotFound, sku)
}

// FindLocationCode implements masterdata.Catalog.
func (c *Catalog) FindLocationCode(_ context.Context, code string) (masterdata.Location, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.locations {
		if l.Code == code {
			return l, nil
		}
	}
	return masterdata.Location{}, fmt.Errorf("%w: location %q", shared.ErrNotFound, code)
}
