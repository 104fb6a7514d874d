package authority

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ordersync/internal/models"

	"github.com/jmoiron/sqlx"
)

// schema is portable between SQLite (tests) and Postgres (deployment).
// Orders are stored as their JSON wire form next to the LWW timestamp; the
// authority never edits order contents, it only arbitrates versions.
const schema = `
CREATE TABLE IF NOT EXISTS authority_orders (
	id         TEXT PRIMARY KEY,
	device_id  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS authority_warehouse_items (
	id                TEXT PRIMARY KEY,
	article_id        TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	total_quantity    INTEGER NOT NULL,
	reserved_quantity INTEGER NOT NULL DEFAULT 0,
	sold_quantity     INTEGER NOT NULL DEFAULT 0,
	container         TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMP NOT NULL,
	device_id         TEXT NOT NULL DEFAULT ''
);
`

// Store is the authority's persistence layer.
type Store struct {
	db *sqlx.DB
}

// Open connects with the given driver ("postgres" or "sqlite3") and
// bootstraps the schema.
func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertOrder applies one order upsert under last-write-wins. It returns
// applied=false with a message for a validation rejection, and applied=false
// with an empty message when the stored version is strictly newer. Replaying
// the same version is applied (idempotent no-op).
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order) (applied bool, message string, err error) {
	if order.ID == "" {
		return false, "order id is required", nil
	}
	if order.CustomerID == "" {
		return false, "customer reference is required", nil
	}
	if len(order.Lines) == 0 && order.Status != models.StatusDraft {
		return false, "order requires at least one line", nil
	}
	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			return false, fmt.Sprintf("line %s: quantity must be positive", line.ID), nil
		}
	}

	var existing struct {
		UpdatedAt sql.NullTime `db:"updated_at"`
	}
	q := s.db.Rebind("SELECT updated_at FROM authority_orders WHERE id = ?")
	err = s.db.GetContext(ctx, &existing, q, order.ID)
	if err != nil && err != sql.ErrNoRows {
		return false, "", err
	}
	if err == nil && existing.UpdatedAt.Valid && existing.UpdatedAt.Time.After(order.UpdatedAt) {
		return false, "", nil
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return false, "", fmt.Errorf("failed to marshal order: %w", err)
	}

	q = s.db.Rebind(`
		INSERT INTO authority_orders (id, device_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			device_id = excluded.device_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, order.ID, order.DeviceID, string(payload), order.UpdatedAt); err != nil {
		return false, "", err
	}
	return true, "", nil
}

// DeleteOrder removes an order. found=false means it was already absent.
func (s *Store) DeleteOrder(ctx context.Context, id string) (found bool, deviceID string, err error) {
	q := s.db.Rebind("SELECT device_id FROM authority_orders WHERE id = ?")
	err = s.db.GetContext(ctx, &deviceID, q, id)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}

	q = s.db.Rebind("DELETE FROM authority_orders WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return false, "", err
	}
	return true, deviceID, nil
}

// ListOrders returns every stored order in its wire form.
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	var payloads []string
	err := s.db.SelectContext(ctx, &payloads,
		"SELECT payload FROM authority_orders ORDER BY updated_at, id")
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(payloads))
	for _, p := range payloads {
		var order models.Order
		if err := json.Unmarshal([]byte(p), &order); err != nil {
			return nil, fmt.Errorf("corrupt stored order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ReplaceWarehouseItems swaps the authoritative stock snapshot, the landing
// point of a bulk import.
func (s *Store) ReplaceWarehouseItems(ctx context.Context, items []models.WarehouseItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM authority_warehouse_items"); err != nil {
		return err
	}

	q := tx.Rebind(`
		INSERT INTO authority_warehouse_items (id, article_id, description, total_quantity,
			reserved_quantity, sold_quantity, container, updated_at, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i := range items {
		item := &items[i]
		_, err := tx.ExecContext(ctx, q,
			item.ID, item.ArticleID, item.Description, item.TotalQuantity,
			item.ReservedQuantity, item.SoldQuantity, item.Container,
			item.UpdatedAt, item.DeviceID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListWarehouseItems returns the full authoritative snapshot.
func (s *Store) ListWarehouseItems(ctx context.Context) ([]models.WarehouseItem, error) {
	var items []models.WarehouseItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, article_id, description, total_quantity, reserved_quantity,
			sold_quantity, container, updated_at, device_id
		FROM authority_warehouse_items ORDER BY article_id, id`)
	return items, err
}
