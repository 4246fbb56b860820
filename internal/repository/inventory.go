package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveInventoryItem stores an inventory item with tenant isolation.
func (r *SQLRepository) SaveInventoryItem(ctx context.Context, tenantID string, item *domain.InventoryItem) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if item.StockQuantity < 0 {
		return fmt.Errorf("%w: stock quantity cannot be negative", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	active := 0
	if item.IsActive {
		active = 1
	}

	query := `
		INSERT INTO inventory_items (
			id, tenant_id, name, stock_quantity, unit_price,
			min_stock_level, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			stock_quantity = excluded.stock_quantity,
			unit_price = excluded.unit_price,
			min_stock_level = excluded.min_stock_level,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		item.ID, tenantID, item.Name, item.StockQuantity, item.UnitPrice,
		item.MinStockLevel, active, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// GetInventoryItem retrieves an inventory item by ID with tenant isolation.
func (r *SQLRepository) GetInventoryItem(ctx context.Context, tenantID string, itemID string) (*domain.InventoryItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, stock_quantity, unit_price,
			   min_stock_level, is_active, created_at, updated_at
		FROM inventory_items
		WHERE tenant_id = ? AND id = ?
	`

	var item domain.InventoryItem
	var active int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, itemID).Scan(
		&item.ID, &item.TenantID, &item.Name, &item.StockQuantity, &item.UnitPrice,
		&item.MinStockLevel, &active, &item.CreatedAt, &item.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	item.IsActive = active == 1
	return &item, nil
}

// ListInventoryItems retrieves all inventory items for a tenant.
func (r *SQLRepository) ListInventoryItems(ctx context.Context, tenantID string) ([]*domain.InventoryItem, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, stock_quantity, unit_price,
			   min_stock_level, is_active, created_at, updated_at
		FROM inventory_items
		WHERE tenant_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.InventoryItem
	for rows.Next() {
		var item domain.InventoryItem
		var active int
		if err := rows.Scan(
			&item.ID, &item.TenantID, &item.Name, &item.StockQuantity, &item.UnitPrice,
			&item.MinStockLevel, &active, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.IsActive = active == 1
		items = append(items, &item)
	}

	return items, rows.Err()
}

// AdjustStockQuantity atomically applies a signed delta to an item's stock.
// The guard in the WHERE clause keeps the quantity from going negative
// under concurrent adjustments.
func (r *SQLRepository) AdjustStockQuantity(ctx context.Context, tenantID string, itemID string, delta int) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE inventory_items
		SET stock_quantity = stock_quantity + ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND stock_quantity + ? >= 0
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		delta, time.Now().UTC(), tenantID, itemID, delta,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing item from a rejected decrement
		if _, err := r.GetInventoryItem(ctx, tenantID, itemID); err != nil {
			return err
		}
		return fmt.Errorf("%w: cannot adjust item %s by %d", ErrInsufficientStock, itemID, delta)
	}

	return nil
}

// ApplyRestock records a restock in the ledger and increments stock in one
// transaction. The ledger's primary key makes repeat applications for the
// same application/item pair return ErrAlreadyApplied instead of double
// crediting.
func (r *SQLRepository) ApplyRestock(ctx context.Context, tenantID string, applicationID string, item domain.RestockItem) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ledgerQuery := `
		INSERT INTO restock_ledger (application_id, item_id, tenant_id, quantity, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(application_id, item_id) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, r.rebind(ledgerQuery),
		applicationID, item.ItemID, tenantID, item.Quantity, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return fmt.Errorf("%w: application %s item %s", ErrAlreadyApplied, applicationID, item.ItemID)
	}

	stockQuery := `
		UPDATE inventory_items
		SET stock_quantity = stock_quantity + ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err = tx.ExecContext(ctx, r.rebind(stockQuery),
		item.Quantity, time.Now().UTC(), tenantID, item.ItemID,
	)
	if err != nil {
		return err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		// No such item; the rollback also discards the ledger entry so a
		// later retry can succeed once the item exists
		return fmt.Errorf("%w: inventory item %s", ErrNotFound, item.ItemID)
	}

	return tx.Commit()
}
