package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ordersync/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a record does not exist locally.
var ErrNotFound = errors.New("record not found")

const orderColumns = `id, customer_id, status, retry_count, error_message,
	created_at, updated_at, needs_sync, deleted, device_id`

// SaveOrder upserts an order and its lines in one transaction. The caller is
// responsible for the sync metadata carried on the order.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				customer_id = excluded.customer_id,
				status = excluded.status,
				retry_count = excluded.retry_count,
				error_message = excluded.error_message,
				updated_at = excluded.updated_at,
				needs_sync = excluded.needs_sync,
				deleted = excluded.deleted,
				device_id = excluded.device_id`,
			order.ID, order.CustomerID, order.Status, order.RetryCount, order.ErrorMessage,
			order.CreatedAt, order.UpdatedAt, order.NeedsSync, order.Deleted, order.DeviceID)
		if err != nil {
			return fmt.Errorf("failed to upsert order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM order_lines WHERE order_id = ?", order.ID); err != nil {
			return fmt.Errorf("failed to clear order lines: %w", err)
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			line.OrderID = order.ID
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (id, order_id, article_id, description, quantity,
					unit_price, discount, tax_rate, warehouse_quantity, warehouse_item_id,
					group_key, holds_reservation)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				line.ID, line.OrderID, line.ArticleID, line.Description, line.Quantity,
				line.UnitPrice, line.Discount, line.TaxRate, line.WarehouseQuantity,
				line.WarehouseItemID, line.GroupKey, line.HoldsReservation)
			if err != nil {
				return fmt.Errorf("failed to insert order line: %w", err)
			}
		}
		return nil
	})
}

// GetOrder retrieves an order with its lines, tombstoned rows included.
// Business views go through ListOrders, which excludes tombstones.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadLines(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves all non-tombstoned orders, newest first.
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE deleted = 0 ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ListDirtyOrders retrieves all orders with unpushed changes, tombstoned
// rows included.
func (s *Store) ListDirtyOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE needs_sync = 1 ORDER BY created_at")
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// MarkOrderSynced clears the dirty bit after the remote authority
// acknowledged the upsert.
func (s *Store) MarkOrderSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE orders SET needs_sync = 0 WHERE id = ?", id)
	return err
}

// UpdateOrderStatus updates status and error message in place.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.Status, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, error_message = ? WHERE id = ?",
		status, errorMessage, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TombstoneOrder marks an order logically deleted and dirty so the delete
// propagates on the next push.
func (s *Store) TombstoneOrder(ctx context.Context, id string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET deleted = 1, needs_sync = 1, updated_at = ? WHERE id = ?",
		updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveOrder hard-deletes an order row and its lines. Only called after a
// tombstone push was acknowledged by the remote authority.
func (s *Store) RemoveOrder(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM order_lines WHERE order_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id)
		return err
	})
}

func (s *Store) loadLines(ctx context.Context, order *models.Order) error {
	return s.db.SelectContext(ctx, &order.Lines, `
		SELECT id, order_id, article_id, description, quantity, unit_price,
			discount, tax_rate, warehouse_quantity, warehouse_item_id, group_key, holds_reservation
		FROM order_lines WHERE order_id = ? ORDER BY id`, order.ID)
}
