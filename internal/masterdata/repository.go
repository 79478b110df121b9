package masterdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// PostgresRepository implements Repository against PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const productColumns = `id, sku, name, uom, tracking_mode, has_variants, reorder_point, min_qty, max_qty, standard_cost, last_cost, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var mode string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.UOM, &mode, &p.HasVariants, &p.ReorderPoint, &p.MinQty, &p.MaxQty,
		&p.StandardCost, &p.LastCost, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	p.TrackingMode = TrackingMode(mode)
	return p, err
}

// GetProduct implements Catalog.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		return Product{}, db.TranslateError(fmt.Errorf("product %d: %w", id, err))
	}
	return p, nil
}

// GetVariant implements Catalog.
func (r *PostgresRepository) GetVariant(ctx context.Context, id int64) (Variant, error) {
	var v Variant
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, sku, name, deleted_at, created_at FROM product_variants WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.DeletedAt, &v.CreatedAt)
	if err != nil {
		return Variant{}, db.TranslateError(fmt.Errorf("variant %d: %w", id, err))
	}
	return v, nil
}

// FindSKU implements Catalog. Product SKUs take precedence over variant SKUs.
func (r *PostgresRepository) FindSKU(ctx context.Context, sku string) (Product, Variant, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1 AND deleted_at IS NULL`, sku))
	if err == nil {
		return p, Variant{}, nil
	}
	if err != pgx.ErrNoRows {
		return Product{}, Variant{}, db.TranslateError(err)
	}
	var v Variant
	err = r.pool.QueryRow(ctx, `SELECT id, product_id, sku, name, deleted_at, created_at FROM product_variants WHERE sku=$1 AND deleted_at IS NULL`, sku).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.DeletedAt, &v.CreatedAt)
	if err != nil {
		return Product{}, Variant{}, db.TranslateError(fmt.Errorf("sku %q: %w", sku, err))
	}
	p, err = r.GetProduct(ctx, v.ProductID)
	if err != nil {
		return Product{}, Variant{}, err
	}
	return p, v, nil
}

// ListProducts retrieves products with pagination.
func (r *PostgresRepository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	limit, offset := page(filters)
	search := "%" + filters.Search + "%"

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE deleted_at IS NULL AND (sku ILIKE $1 OR name ILIKE $1)`, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+`
FROM products
WHERE deleted_at IS NULL AND (sku ILIKE $1 OR name ILIKE $1)
ORDER BY sku
LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// CreateProduct inserts a product.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO products (sku, name, uom, tracking_mode, has_variants, reorder_point, min_qty, max_qty, standard_cost, last_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+productColumns,
		p.SKU, p.Name, p.UOM, string(p.TrackingMode), p.HasVariants, p.ReorderPoint, p.MinQty, p.MaxQty, p.StandardCost, p.LastCost)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, db.TranslateError(err)
	}
	return created, nil
}

// CreateVariant inserts a product variant.
func (r *PostgresRepository) CreateVariant(ctx context.Context, v Variant) (Variant, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO product_variants (product_id, sku, name) VALUES ($1,$2,$3) RETURNING id, created_at`,
		v.ProductID, v.SKU, v.Name).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return Variant{}, db.TranslateError(err)
	}
	return v, nil
}

// SoftDeleteProduct marks a product deleted. History keeps referencing it.
func (r *PostgresRepository) SoftDeleteProduct(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET deleted_at=$2, updated_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return nil
}

// GetWarehouse implements Catalog.
func (r *PostgresRepository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, is_active, created_at FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt)
	if err != nil {
		return Warehouse{}, db.TranslateError(fmt.Errorf("warehouse %d: %w", id, err))
	}
	return w, nil
}

// ListWarehouses retrieves warehouses with pagination.
func (r *PostgresRepository) ListWarehouses(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	limit, offset := page(filters)
	search := "%" + filters.Search + "%"

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses WHERE code ILIKE $1 OR name ILIKE $1`, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, address, is_active, created_at
FROM warehouses WHERE code ILIKE $1 OR name ILIKE $1
ORDER BY code LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, total, rows.Err()
}

// CreateWarehouse inserts a warehouse.
func (r *PostgresRepository) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, is_active) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
		w.Code, w.Name, w.Address, w.IsActive).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return Warehouse{}, db.TranslateError(err)
	}
	return w, nil
}

const locationColumns = `id, warehouse_id, code, name, zone, rack, shelf, is_active, created_at`

func scanLocation(row pgx.Row) (Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.WarehouseID, &l.Code, &l.Name, &l.Zone, &l.Rack, &l.Shelf, &l.IsActive, &l.CreatedAt)
	return l, err
}

// GetLocation implements Catalog.
func (r *PostgresRepository) GetLocation(ctx context.Context, id int64) (Location, error) {
	l, err := scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id=$1`, id))
	if err != nil {
		return Location{}, db.TranslateError(fmt.Errorf("location %d: %w", id, err))
	}
	return l, nil
}

// FindLocationCode implements Catalog.
func (r *PostgresRepository) FindLocationCode(ctx context.Context, code string) (Location, error) {
	l, err := scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE code=$1`, code))
	if err != nil {
		return Location{}, db.TranslateError(fmt.Errorf("location %q: %w", code, err))
	}
	return l, nil
}

// ListLocations retrieves locations, optionally for one warehouse.
func (r *PostgresRepository) ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	limit, offset := page(filters)
	search := "%" + filters.Search + "%"

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM locations WHERE ($1 = 0 OR warehouse_id = $1) AND (code ILIKE $2 OR name ILIKE $2)`,
		filters.WarehouseID, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+locationColumns+`
FROM locations
WHERE ($1 = 0 OR warehouse_id = $1) AND (code ILIKE $2 OR name ILIKE $2)
ORDER BY code LIMIT $3 OFFSET $4`, filters.WarehouseID, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		locations = append(locations, l)
	}
	return locations, total, rows.Err()
}

// CreateLocation inserts a location.
func (r *PostgresRepository) CreateLocation(ctx context.Context, l Location) (Location, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO locations (warehouse_id, code, name, zone, rack, shelf, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		l.WarehouseID, l.Code, l.Name, l.Zone, l.Rack, l.Shelf, l.IsActive).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return Location{}, db.TranslateError(err)
	}
	return l, nil
}

const supplierColumns = `id, code, name, phone, email, is_active, deleted_at, created_at, updated_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Phone, &s.Email, &s.IsActive, &s.DeletedAt, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetSupplier implements Catalog.
func (r *PostgresRepository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id=$1`, id))
	if err != nil {
		return Supplier{}, db.TranslateError(fmt.Errorf("supplier %d: %w", id, err))
	}
	return s, nil
}

// ListSuppliers retrieves suppliers with pagination.
func (r *PostgresRepository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	limit, offset := page(filters)
	search := "%" + filters.Search + "%"

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE deleted_at IS NULL AND (code ILIKE $1 OR name ILIKE $1)`, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+`
FROM suppliers WHERE deleted_at IS NULL AND (code ILIKE $1 OR name ILIKE $1)
ORDER BY code LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

// CreateSupplier inserts a supplier.
func (r *PostgresRepository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO suppliers (code, name, phone, email, is_active) VALUES ($1,$2,$3,$4,$5) RETURNING `+supplierColumns,
		s.Code, s.Name, s.Phone, s.Email, s.IsActive)
	created, err := scanSupplier(row)
	if err != nil {
		return Supplier{}, db.TranslateError(err)
	}
	return created, nil
}

// SoftDeleteSupplier marks a supplier deleted.
func (r *PostgresRepository) SoftDeleteSupplier(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET deleted_at=$2, is_active=FALSE, updated_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier %d", shared.ErrNotFound, id)
	}
	return nil
}

func page(filters ListFilters) (limit, offset int) {
	_, limit = shared.NormalizePage(filters.Page, filters.Limit)
	return limit, shared.PageOffset(filters.Page, filters.Limit)
}
