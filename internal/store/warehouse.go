package store

import (
	"context"
	"database/sql"
	"time"

	"ordersync/internal/models"

	"github.com/jmoiron/sqlx"
)

const warehouseColumns = `id, article_id, description, total_quantity,
	reserved_quantity, sold_quantity, container, updated_at, device_id`

// ReplaceWarehouseItems atomically swaps the local warehouse replica for the
// given remote snapshot. The warehouse is server-authoritative, so the local
// table is never merged, only replaced.
func (s *Store) ReplaceWarehouseItems(ctx context.Context, items []models.WarehouseItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM warehouse_items"); err != nil {
			return err
		}
		for i := range items {
			item := &items[i]
			_, err := tx.ExecContext(ctx, `
				INSERT INTO warehouse_items (`+warehouseColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, item.ArticleID, item.Description, item.TotalQuantity,
				item.ReservedQuantity, item.SoldQuantity, item.Container,
				item.UpdatedAt, item.DeviceID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWarehouseItem retrieves a warehouse item by id.
func (s *Store) GetWarehouseItem(ctx context.Context, id string) (*models.WarehouseItem, error) {
	var item models.WarehouseItem
	err := s.db.GetContext(ctx, &item, "SELECT "+warehouseColumns+" FROM warehouse_items WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListWarehouseItems retrieves the full local warehouse replica.
func (s *Store) ListWarehouseItems(ctx context.Context) ([]models.WarehouseItem, error) {
	var items []models.WarehouseItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+warehouseColumns+" FROM warehouse_items ORDER BY article_id, id")
	return items, err
}

// AdjustReserved changes reserved_quantity by delta, guarded so that
// reserved + sold never exceeds total and reserved never goes negative.
// Returns false without modifying the row when the guard fails.
func (s *Store) AdjustReserved(ctx context.Context, itemID string, delta int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE warehouse_items
		SET reserved_quantity = reserved_quantity + ?, updated_at = ?
		WHERE id = ?
		  AND reserved_quantity + sold_quantity + ? <= total_quantity
		  AND reserved_quantity + ? >= 0`,
		delta, now, itemID, delta, delta)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConvertReservedToSold moves qty from reserved_quantity to sold_quantity,
// guarded against converting more than is reserved. The sum reserved + sold
// is unchanged, so the stock invariant holds by construction.
func (s *Store) ConvertReservedToSold(ctx context.Context, itemID string, qty int, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE warehouse_items
		SET reserved_quantity = reserved_quantity - ?,
		    sold_quantity = sold_quantity + ?,
		    updated_at = ?
		WHERE id = ? AND reserved_quantity >= ?`,
		qty, qty, now, itemID, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InsertReservation records a hold tying an order (and line group) to a
// warehouse item quantity.
func (s *Store) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations (id, order_id, group_key, warehouse_item_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.GroupKey, r.WarehouseItemID, r.Quantity, r.CreatedAt)
	return err
}

// ReservationsByOrder retrieves all active holds for an order.
func (s *Store) ReservationsByOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var rs []models.Reservation
	err := s.db.SelectContext(ctx, &rs, `
		SELECT id, order_id, group_key, warehouse_item_id, quantity, created_at
		FROM reservations WHERE order_id = ? ORDER BY created_at, id`, orderID)
	return rs, err
}

// DeleteReservationsByOrder drops all holds for an order.
func (s *Store) DeleteReservationsByOrder(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM reservations WHERE order_id = ?", orderID)
	return err
}

// InsertSale appends a row to the sale journal.
func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, order_id, warehouse_item_id, quantity, sale_ref, sold_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.OrderID, sale.WarehouseItemID, sale.Quantity, sale.SaleRef, sale.SoldAt)
	return err
}

// SalesByOrder retrieves the sale journal rows for an order.
func (s *Store) SalesByOrder(ctx context.Context, orderID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales, `
		SELECT id, order_id, warehouse_item_id, quantity, sale_ref, sold_at
		FROM sales WHERE order_id = ? ORDER BY sold_at, id`, orderID)
	return sales, err
}
