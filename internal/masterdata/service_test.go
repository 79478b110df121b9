package masterdata_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
)

// memoryRepo serves reads from the test catalog and records writes into it.
type memoryRepo struct {
	*testutil.Catalog
	deleted map[int64]time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{Catalog: testutil.NewCatalog(), deleted: map[int64]time.Time{}}
}

func (r *memoryRepo) ListProducts(context.Context, masterdata.ListFilters) ([]masterdata.Product, int, error) {
	return nil, 0, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p masterdata.Product) (masterdata.Product, error) {
	if _, _, err := r.FindSKU(ctx, p.SKU); err == nil {
		return masterdata.Product{}, fmt.Errorf("%w: sku", shared.ErrDuplicateDocument)
	}
	return r.AddProduct(p), nil
}

func (r *memoryRepo) CreateVariant(_ context.Context, v masterdata.Variant) (masterdata.Variant, error) {
	return r.AddVariant(v), nil
}

func (r *memoryRepo) SoftDeleteProduct(_ context.Context, id int64, at time.Time) error {
	p := r.Product(id)
	if p.ID == 0 {
		return shared.ErrNotFound
	}
	p.DeletedAt = &at
	r.AddProduct(p)
	return nil
}

func (r *memoryRepo) ListWarehouses(context.Context, masterdata.ListFilters) ([]masterdata.Warehouse, int, error) {
	return nil, 0, nil
}

func (r *memoryRepo) CreateWarehouse(_ context.Context, w masterdata.Warehouse) (masterdata.Warehouse, error) {
	return r.AddWarehouse(w.Code), nil
}

func (r *memoryRepo) ListLocations(context.Context, masterdata.ListFilters) ([]masterdata.Location, int, error) {
	return nil, 0, nil
}

func (r *memoryRepo) CreateLocation(_ context.Context, l masterdata.Location) (masterdata.Location, error) {
	return r.AddLocation(l.WarehouseID, l.Code), nil
}

func (r *memoryRepo) ListSuppliers(context.Context, masterdata.ListFilters) ([]masterdata.Supplier, int, error) {
	return nil, 0, nil
}

func (r *memoryRepo) CreateSupplier(_ context.Context, s masterdata.Supplier) (masterdata.Supplier, error) {
	return r.AddSupplier(s.Code), nil
}

func (r *memoryRepo) SoftDeleteSupplier(_ context.Context, id int64, at time.Time) error {
	r.deleted[id] = at
	return nil
}

var editor = testutil.Actor(1, shared.CoreScopes()...)

func TestNormalizeCode(t *testing.T) {
	require.Equal(t, "ABC-01", masterdata.NormalizeCode("  abc-01 "))
	// Full-width characters fold to ASCII.
	require.Equal(t, "SKU1", masterdata.NormalizeCode("ｓｋｕ１"))
}

func TestCreateProductValidation(t *testing.T) {
	svc := masterdata.NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, testutil.Actor(2, shared.PermMasterDataView), masterdata.Product{SKU: "a", Name: "A"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = svc.CreateProduct(ctx, editor, masterdata.Product{SKU: " ", Name: "A"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, editor, masterdata.Product{SKU: "a", Name: "A", TrackingMode: "CONSIGNED"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, editor, masterdata.Product{SKU: "a", Name: "A", MinQty: testutil.D("10"), MaxQty: testutil.D("5")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, editor, masterdata.Product{SKU: "a", Name: "A", ReorderPoint: testutil.D("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err := svc.CreateProduct(ctx, editor, masterdata.Product{SKU: "widget-1", Name: " Widget "})
	require.NoError(t, err)
	require.Equal(t, "WIDGET-1", p.SKU)
	require.Equal(t, "Widget", p.Name)
	require.Equal(t, "PCS", p.UOM)
	require.Equal(t, masterdata.TrackingStocked, p.TrackingMode)

	_, err = svc.CreateProduct(ctx, editor, masterdata.Product{SKU: "WIDGET-1", Name: "Again"})
	require.ErrorIs(t, err, shared.ErrDuplicateDocument)
}

func TestCreateVariantRequiresVariantProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := masterdata.NewService(repo)
	ctx := context.Background()

	plain := repo.AddProduct(masterdata.Product{SKU: "plain", Name: "Plain"})
	_, err := svc.CreateVariant(ctx, editor, masterdata.Variant{ProductID: plain.ID, SKU: "plain-red", Name: "Red"})
	require.ErrorIs(t, err, shared.ErrValidation)

	shirt := repo.AddProduct(masterdata.Product{SKU: "shirt", Name: "Shirt", HasVariants: true})
	v, err := svc.CreateVariant(ctx, editor, masterdata.Variant{ProductID: shirt.ID, SKU: "shirt-red-m", Name: "Red M"})
	require.NoError(t, err)
	require.Equal(t, "SHIRT-RED-M", v.SKU)

	_, err = svc.CreateVariant(ctx, editor, masterdata.Variant{ProductID: 424242, SKU: "x", Name: "X"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveStockable(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	plain := repo.AddProduct(masterdata.Product{SKU: "plain", Name: "Plain"})
	service := repo.AddProduct(masterdata.Product{SKU: "install", Name: "Install", TrackingMode: masterdata.TrackingDropShip})
	shirt := repo.AddProduct(masterdata.Product{SKU: "shirt", Name: "Shirt", HasVariants: true})
	red := repo.AddVariant(masterdata.Variant{ProductID: shirt.ID, SKU: "shirt-red", Name: "Red"})
	stray := repo.AddVariant(masterdata.Variant{ProductID: plain.ID, SKU: "stray", Name: "Stray"})

	item, err := masterdata.ResolveStockable(ctx, repo, plain.ID, 0)
	require.NoError(t, err)
	require.Equal(t, plain.ID, item.Product.ID)

	item, err = masterdata.ResolveStockable(ctx, repo, shirt.ID, red.ID)
	require.NoError(t, err)
	require.Equal(t, red.ID, item.Variant.ID)

	for name, ids := range map[string][2]int64{
		"variant product without variant": {shirt.ID, 0},
		"plain product with variant":      {plain.ID, red.ID},
		"variant of another product":      {shirt.ID, stray.ID},
		"not stocked":                     {service.ID, 0},
	} {
		_, err := masterdata.ResolveStockable(ctx, repo, ids[0], ids[1])
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}

	svc := masterdata.NewService(repo)
	require.NoError(t, svc.DeleteProduct(ctx, editor, plain.ID))
	_, err = masterdata.ResolveStockable(ctx, repo, plain.ID, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateLocationNeedsWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	svc := masterdata.NewService(repo)
	ctx := context.Background()

	_, err := svc.CreateLocation(ctx, editor, masterdata.Location{WarehouseID: 1, Code: "A-01", Name: "Aisle"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	wh, err := svc.CreateWarehouse(ctx, editor, masterdata.Warehouse{Code: "main", Name: "Main"})
	require.NoError(t, err)
	loc, err := svc.CreateLocation(ctx, editor, masterdata.Location{WarehouseID: wh.ID, Code: "a-01", Name: "Aisle"})
	require.NoError(t, err)
	require.Equal(t, "A-01", loc.Code)

	found, err := masterdata.ResolveLocation(ctx, repo, loc.ID)
	require.NoError(t, err)
	require.Equal(t, wh.ID, found.WarehouseID)

	_, err = masterdata.ResolveLocation(ctx, repo, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}
