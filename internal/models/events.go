package models

import "time"

// Event types published by the authority for downstream consumers.
const (
	EventTypeOrderReceived = "ORDER_RECEIVED"
	EventTypeOrderDeleted  = "ORDER_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderReceivedEvent published when an order upsert from a device is applied
type OrderReceivedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	DeviceID   string `json:"device_id"`
	LineCount  int    `json:"line_count"`
}

// OrderDeletedEvent published when a device tombstone is applied
type OrderDeletedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	DeviceID string `json:"device_id"`
}
