package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// schema is the per-device local schema. Bootstrap is idempotent so a store
// can be reopened over an existing database file.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	needs_sync    INTEGER NOT NULL DEFAULT 0,
	deleted       INTEGER NOT NULL DEFAULT 0,
	device_id     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS order_lines (
	id                 TEXT PRIMARY KEY,
	order_id           TEXT NOT NULL,
	article_id         TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	quantity           INTEGER NOT NULL,
	unit_price         TEXT NOT NULL DEFAULT '0',
	discount           TEXT NOT NULL DEFAULT '0',
	tax_rate           TEXT NOT NULL DEFAULT '0',
	warehouse_quantity INTEGER NOT NULL DEFAULT 0,
	warehouse_item_id  TEXT NOT NULL DEFAULT '',
	group_key          TEXT NOT NULL DEFAULT '',
	holds_reservation  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS warehouse_items (
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

CREATE TABLE IF NOT EXISTS reservations (
	id                TEXT PRIMARY KEY,
	order_id          TEXT NOT NULL,
	group_key         TEXT NOT NULL DEFAULT '',
	warehouse_item_id TEXT NOT NULL,
	quantity          INTEGER NOT NULL,
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
	id                TEXT PRIMARY KEY,
	order_id          TEXT NOT NULL,
	warehouse_item_id TEXT NOT NULL,
	quantity          INTEGER NOT NULL,
	sale_ref          TEXT NOT NULL DEFAULT '',
	sold_at           TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_needs_sync ON orders(needs_sync);
CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id);
CREATE INDEX IF NOT EXISTS idx_reservations_order ON reservations(order_id);
`

type Store struct {
	db *sqlx.DB
}

// NewStore opens (and if necessary bootstraps) the per-device database.
// Pass ":memory:" for an ephemeral store in tests.
func NewStore(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps in-memory
	// databases on one handle.
	db.SetMaxOpenConns(1)

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

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
