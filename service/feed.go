package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"canteen-runner-api/events"
	"canteen-runner-api/models"
	"canteen-runner-api/realtime"

	"gorm.io/gorm"
)

// RunnerOrder is an order as a runner sees it. The buyer's code is never part
// of it. Buyer and runner contact details appear only once the viewer is the
// order's runner.
type RunnerOrder struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	UserName         string             `json:"user_name"`
	UserPhone        string             `json:"user_phone,omitempty"`
	Canteen          string             `json:"canteen"`
	Items            []string           `json:"items"`
	DeliveryLocation string             `json:"delivery_location"`
	Status           models.OrderStatus `json:"status"`
	RunnerID         *string            `json:"runner_id,omitempty"`
	RunnerName       string             `json:"runner_name,omitempty"`
	RunnerPhone      string             `json:"runner_phone,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func NewRunnerOrder(o models.Order, viewerID string) RunnerOrder {
	name := o.UserName
	if o.Buyer != nil && o.Buyer.Name != "" {
		name = o.Buyer.Name
	}
	ro := RunnerOrder{
		ID:               o.ID,
		UserID:           o.UserID,
		UserName:         name,
		Canteen:          o.Canteen,
		Items:            o.Items,
		DeliveryLocation: o.DeliveryLocation,
		Status:           o.Status,
		RunnerID:         o.RunnerID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.RunnerID != nil && *o.RunnerID == viewerID {
		ro.RunnerName = o.RunnerName
		ro.RunnerPhone = o.RunnerPhone
		ro.UserPhone = o.UserPhone
		if o.Buyer != nil && o.Buyer.Phone != "" {
			ro.UserPhone = o.Buyer.Phone
		}
	}
	return ro
}

// RunnerBoard is the three runner lists.
type RunnerBoard struct {
	Available []RunnerOrder `json:"available"`
	Accepted  []RunnerOrder `json:"accepted"`
	Completed []RunnerOrder `json:"completed"`
}

// Frame is one message on a live feed.
type Frame struct {
	Type   string `json:"type"`
	Order  any    `json:"order,omitempty"`
	Orders any    `json:"orders,omitempty"`
}

const FrameSnapshot = "snapshot"

type FeedService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewFeedService(db *gorm.DB, hub *realtime.Hub) *FeedService {
	return &FeedService{db: db, hub: hub}
}

// MatchLocation is a case-insensitive substring match; an empty query matches
// everything.
func MatchLocation(location, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(location), strings.ToLower(query))
}

// Available lists pending orders placed by others, oldest first. The location
// filter runs over the fetched rows.
func (s *FeedService) Available(ctx context.Context, runnerID, location string) ([]RunnerOrder, error) {
	orders, err := s.find(ctx, "status = ? AND user_id <> ?", "created_at asc", models.StatusPending, runnerID)
	if err != nil {
		return nil, err
	}
	return view(orders, runnerID, location), nil
}

// Accepted lists the runner's open runs. location narrows it like Available.
func (s *FeedService) Accepted(ctx context.Context, runnerID, location string) ([]RunnerOrder, error) {
	return s.runnerOrders(ctx, runnerID, location, models.StatusPicked)
}

func (s *FeedService) Completed(ctx context.Context, runnerID, location string) ([]RunnerOrder, error) {
	return s.runnerOrders(ctx, runnerID, location, models.StatusDelivered)
}

func (s *FeedService) Board(ctx context.Context, runnerID, location string) (*RunnerBoard, error) {
	available, err := s.Available(ctx, runnerID, location)
	if err != nil {
		return nil, err
	}
	accepted, err := s.Accepted(ctx, runnerID, location)
	if err != nil {
		return nil, err
	}
	completed, err := s.Completed(ctx, runnerID, location)
	if err != nil {
		return nil, err
	}
	return &RunnerBoard{Available: available, Accepted: accepted, Completed: completed}, nil
}

func (s *FeedService) runnerOrders(ctx context.Context, runnerID, location string, status models.OrderStatus) ([]RunnerOrder, error) {
	orders, err := s.find(ctx, "status = ? AND runner_id = ?", "updated_at desc", status, runnerID)
	if err != nil {
		return nil, err
	}
	return view(orders, runnerID, location), nil
}

// view keeps the orders whose delivery location matches and renders them for
// the viewer.
func view(orders []models.Order, viewerID, location string) []RunnerOrder {
	out := make([]RunnerOrder, 0, len(orders))
	for _, o := range orders {
		if MatchLocation(o.DeliveryLocation, location) {
			out = append(out, NewRunnerOrder(o, viewerID))
		}
	}
	return out
}

// find loads orders with their buyer profiles in one batched preload.
func (s *FeedService) find(ctx context.Context, where, order string, args ...any) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Buyer").
		Where(where, args...).
		Order(order).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("query runner orders: %w", err)
	}
	return orders, nil
}

// RunnerFilter keeps events about other buyers' orders entering or leaving
// pending plus every event on the runner's own runs, all narrowed by location.
func RunnerFilter(runnerID, location string) realtime.Filter {
	return func(ev events.OrderEvent) bool {
		o := ev.Order
		if !MatchLocation(o.DeliveryLocation, location) {
			return false
		}
		if o.RunnerID != nil && *o.RunnerID == runnerID {
			return true
		}
		if o.UserID == runnerID {
			return false
		}
		return o.Status == models.StatusPending || ev.FromStatus == models.StatusPending
	}
}

func BuyerFilter(buyerID string) realtime.Filter {
	return func(ev events.OrderEvent) bool {
		return ev.Order.UserID == buyerID
	}
}

// SubscribeRunner registers the live subscription before the snapshot is read
// so nothing committed in between is missed.
func (s *FeedService) SubscribeRunner(ctx context.Context, runnerID, location string) (*realtime.Subscription, Frame, error) {
	sub := s.hub.Subscribe(runnerID, RunnerFilter(runnerID, location))
	board, err := s.Board(ctx, runnerID, location)
	if err != nil {
		s.hub.Unsubscribe(sub)
		return nil, Frame{}, err
	}
	return sub, Frame{Type: FrameSnapshot, Orders: board}, nil
}

func (s *FeedService) SubscribeBuyer(ctx context.Context, buyerID string, orders *OrderService) (*realtime.Subscription, Frame, error) {
	sub := s.hub.Subscribe(buyerID, BuyerFilter(buyerID))
	list, err := orders.ListForBuyer(ctx, buyerID)
	if err != nil {
		s.hub.Unsubscribe(sub)
		return nil, Frame{}, err
	}
	return sub, Frame{Type: FrameSnapshot, Orders: list}, nil
}

func (s *FeedService) Unsubscribe(sub *realtime.Subscription) {
	s.hub.Unsubscribe(sub)
}

func (s *FeedService) Hub() *realtime.Hub {
	return s.hub
}

// RunnerFrame renders an event for a runner's feed.
func RunnerFrame(runnerID string) realtime.Render {
	return func(ev events.OrderEvent) (any, bool) {
		return Frame{Type: string(ev.Type), Order: NewRunnerOrder(ev.Order, runnerID)}, true
	}
}

func BuyerFrame(ev events.OrderEvent) (any, bool) {
	return Frame{Type: string(ev.Type), Order: ev.Order}, true
}
