// Package events publishes order lifecycle messages to Pub/Sub. Delivery is
// best effort: a failed publish is logged and never fails the request that
// triggered it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/electrocart/api/internal/domain"
)

const (
	// TypeOrderPlaced is emitted once when checkout persists a new order.
	TypeOrderPlaced = "order.placed"
	// TypeOrderStatusChanged is emitted on every applied lifecycle transition.
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderEvent is the message body for order lifecycle notifications.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prevStatus,omitempty"`
	MovedStock bool      `json:"movedStock"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher emits order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// PubSubPublisher publishes order events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues the event and returns the server message ID.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// OrderPlaced builds the checkout event for a freshly persisted order.
func OrderPlaced(order domain.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       TypeOrderPlaced,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Total:      order.Total,
		OccurredAt: at,
	}
}

// OrderStatusChanged builds the transition event.
func OrderStatusChanged(order domain.Order, prev domain.OrderStatus, movedStock bool, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       TypeOrderStatusChanged,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		PrevStatus: string(prev),
		MovedStock: movedStock,
		Total:      order.Total,
		OccurredAt: at,
	}
}
