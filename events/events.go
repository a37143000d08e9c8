// Package events carries order changes from the services to the live feeds,
// either in process or across instances through NATS.
package events

import (
	"context"
	"encoding/json"
	"time"

	"canteen-runner-api/models"
)

type EventType string

const (
	OrderCreated       EventType = "order.created"
	OrderStatusChanged EventType = "order.status_changed"
)

type OrderEvent struct {
	Type       EventType          `json:"type"`
	Order      models.Order       `json:"order"`
	FromStatus models.OrderStatus `json:"from_status,omitempty"`
	ActorID    string             `json:"actor_id,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewOrderEvent(t EventType, order models.Order, from models.OrderStatus, actorID string) OrderEvent {
	order.StatusHistory = nil
	order.Buyer = nil
	return OrderEvent{
		Type:       t,
		Order:      order,
		FromStatus: from,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher hands an event to whatever fans it out.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// Broadcaster delivers an event to the live subscriptions of this instance.
type Broadcaster interface {
	Broadcast(ev OrderEvent)
}

// LocalPublisher broadcasts straight into this process.
type LocalPublisher struct {
	b Broadcaster
}

var _ Publisher = (*LocalPublisher)(nil)

func NewLocalPublisher(b Broadcaster) *LocalPublisher {
	return &LocalPublisher{b: b}
}

func (p *LocalPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	p.b.Broadcast(ev)
	return nil
}

func Encode(ev OrderEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func Decode(data []byte) (OrderEvent, error) {
	var ev OrderEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}
