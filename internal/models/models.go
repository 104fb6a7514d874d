package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncMeta carries the replication state embedded in every synced record.
type SyncMeta struct {
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	NeedsSync bool      `db:"needs_sync" json:"needs_sync"`
	Deleted   bool      `db:"deleted" json:"deleted"`
	DeviceID  string    `db:"device_id" json:"device_id"`
}

// Order represents a sales order awaiting or having undergone remote submission.
type Order struct {
	ID           string      `db:"id" json:"id"`
	CustomerID   string      `db:"customer_id" json:"customer_id"`
	Status       Status      `db:"status" json:"status"`
	RetryCount   int         `db:"retry_count" json:"retry_count"`
	ErrorMessage string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	Lines        []OrderLine `db:"-" json:"lines"`
	SyncMeta
}

// OrderLine represents one ordered position. Lines sharing a GroupKey are
// package variants of a single user-facing position; exactly one of them
// (HoldsReservation) carries the warehouse reservation metadata for the group.
type OrderLine struct {
	ID                string          `db:"id" json:"id"`
	OrderID           string          `db:"order_id" json:"order_id"`
	ArticleID         string          `db:"article_id" json:"article_id"`
	Description       string          `db:"description" json:"description"`
	Quantity          int             `db:"quantity" json:"quantity"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unit_price"`
	Discount          decimal.Decimal `db:"discount" json:"discount"`
	TaxRate           decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	WarehouseQuantity int             `db:"warehouse_quantity" json:"warehouse_quantity"`
	WarehouseItemID   string          `db:"warehouse_item_id" json:"warehouse_item_id,omitempty"`
	GroupKey          string          `db:"group_key" json:"group_key"`
	HoldsReservation  bool            `db:"holds_reservation" json:"holds_reservation"`
}

// WarehouseItem represents a physical stock unit batch. The authoritative
// copy lives server-side; the local replica is replaced wholesale on pull.
type WarehouseItem struct {
	ID               string    `db:"id" json:"id"`
	ArticleID        string    `db:"article_id" json:"article_id"`
	Description      string    `db:"description" json:"description"`
	TotalQuantity    int       `db:"total_quantity" json:"total_quantity"`
	ReservedQuantity int       `db:"reserved_quantity" json:"reserved_quantity"`
	SoldQuantity     int       `db:"sold_quantity" json:"sold_quantity"`
	Container        string    `db:"container" json:"container"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
	DeviceID         string    `db:"device_id" json:"device_id"`
}

// Available returns the quantity still open for reservation.
func (w *WarehouseItem) Available() int {
	return w.TotalQuantity - w.ReservedQuantity - w.SoldQuantity
}

// Reservation is a provisional hold against a WarehouseItem, owned by an
// order and tagged with the line group it fulfills.
type Reservation struct {
	ID              string    `db:"id" json:"id"`
	OrderID         string    `db:"order_id" json:"order_id"`
	GroupKey        string    `db:"group_key" json:"group_key"`
	WarehouseItemID string    `db:"warehouse_item_id" json:"warehouse_item_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Sale is a journal row written when a reservation is converted to a sale.
type Sale struct {
	ID              string    `db:"id" json:"id"`
	OrderID         string    `db:"order_id" json:"order_id"`
	WarehouseItemID string    `db:"warehouse_item_id" json:"warehouse_item_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	SaleRef         string    `db:"sale_ref" json:"sale_ref"`
	SoldAt          time.Time `db:"sold_at" json:"sold_at"`
}
