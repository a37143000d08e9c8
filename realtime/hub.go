package realtime

import (
	"sync"

	"canteen-runner-api/events"
	"canteen-runner-api/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Filter decides whether a subscription wants an event.
type Filter func(ev events.OrderEvent) bool

type Subscription struct {
	ID     string
	UserID string
	events chan events.OrderEvent
	filter Filter
}

// Events is closed when the subscription is removed, either by
// Unsubscribe or because it fell behind.
func (s *Subscription) Events() <-chan events.OrderEvent {
	return s.events
}

// Hub fans order events out to live subscriptions. Broadcast never blocks:
// a subscriber whose buffer is full is dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	log    *zap.Logger
}

var _ events.Broadcaster = (*Hub)(nil)

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log.Named("hub"),
	}
}

func (h *Hub) Subscribe(userID string, filter Filter) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		events: make(chan events.OrderEvent, h.buffer),
		filter: filter,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.events)
		return sub
	}
	h.subs[sub] = struct{}{}
	metrics.SetLiveSubscribers(len(h.subs))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.events)
	metrics.SetLiveSubscribers(len(h.subs))
}

func (h *Hub) Broadcast(ev events.OrderEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			h.log.Warn("dropping slow subscriber",
				zap.String("subscription", sub.ID),
				zap.String("user_id", sub.UserID))
			h.remove(sub)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.remove(sub)
	}
	h.closed = true
}
