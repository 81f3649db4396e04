package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/shared"
)

// Repository provides PostgreSQL backed persistence for inventory records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateWarehouse inserts a warehouse.
func (r *Repository) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO warehouses (id, name, location, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW(), NOW())
		RETURNING id, name, COALESCE(location, ''), created_at, updated_at`,
		w.ID, w.Name, w.Location)
	var stored Warehouse
	if err := row.Scan(&stored.ID, &stored.Name, &stored.Location, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return Warehouse{}, shared.MapPgError(err)
	}
	return stored, nil
}

// ListWarehouses returns all warehouses ordered by name.
func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(location, ''), created_at, updated_at
		FROM warehouses ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Location, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

// CreateItem inserts an item.
func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO items (id, sku, name, description, unit_price_cents, quantity, warehouse_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW(), NOW())
		RETURNING id, sku, name, COALESCE(description, ''), unit_price_cents, quantity, warehouse_id, created_at, updated_at`,
		item.ID, item.SKU, item.Name, item.Description, item.UnitPriceCents, item.Quantity, item.WarehouseID)
	return scanItem(row)
}

// GetItemBySKU fetches an item by its SKU.
func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, sku, name, COALESCE(description, ''), unit_price_cents, quantity, warehouse_id, created_at, updated_at
		FROM items WHERE sku = $1`, sku)
	return scanItem(row)
}

// ListItems returns all items ordered by SKU.
func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sku, name, COALESCE(description, ''), unit_price_cents, quantity, warehouse_id, created_at, updated_at
		FROM items ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RecordMovement inserts a stock movement and adjusts the item quantity in
// one transaction.
func (r *Repository) RecordMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	if err := m.Validate(); err != nil {
		return StockMovement{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return StockMovement{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE items SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`, m.ItemID, m.Delta())
	if err != nil {
		return StockMovement{}, err
	}
	if tag.RowsAffected() == 0 {
		return StockMovement{}, shared.ErrNotFound
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO stock_movements (id, item_id, warehouse_id, movement_type, quantity, note, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW())
		RETURNING id, item_id, warehouse_id, movement_type, quantity, COALESCE(note, ''), created_by, created_at`,
		m.ID, m.ItemID, m.WarehouseID, m.MovementType, m.Quantity, m.Note, m.CreatedBy)
	var stored StockMovement
	if err := row.Scan(&stored.ID, &stored.ItemID, &stored.WarehouseID, &stored.MovementType,
		&stored.Quantity, &stored.Note, &stored.CreatedBy, &stored.CreatedAt); err != nil {
		return StockMovement{}, shared.MapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return StockMovement{}, err
	}
	return stored, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.SKU, &item.Name, &item.Description, &item.UnitPriceCents,
		&item.Quantity, &item.WarehouseID, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	if err != nil {
		return Item{}, shared.MapPgError(err)
	}
	return item, nil
}
