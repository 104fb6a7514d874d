package broker

import (
	"context"
	"time"

	"ordersync/internal/models"

	"github.com/google/uuid"
)

// EventPublisher publishes the authority's domain events for downstream
// consumers (ERP, reporting). A nil publisher is a no-op, so the authority
// can run without a broker.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderReceived publishes an OrderReceived event for an applied upsert
func (ep *EventPublisher) PublishOrderReceived(ctx context.Context, order *models.Order) error {
	if ep == nil || ep.producer == nil {
		return nil
	}
	event := &models.OrderReceivedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderReceived,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		DeviceID:   order.DeviceID,
		LineCount:  len(order.Lines),
	}
	return ep.producer.PublishEvent(ctx, "order-"+order.ID, event)
}

// PublishOrderDeleted publishes an OrderDeleted event for an applied tombstone
func (ep *EventPublisher) PublishOrderDeleted(ctx context.Context, orderID, deviceID string) error {
	if ep == nil || ep.producer == nil {
		return nil
	}
	event := &models.OrderDeletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderDeleted,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		DeviceID: deviceID,
	}
	return ep.producer.PublishEvent(ctx, "order-"+orderID, event)
}
