package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"canteen-runner-api/events"
	"canteen-runner-api/metrics"
	"canteen-runner-api/models"
	"canteen-runner-api/statemachine"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRunnerName  = "Unnamed"
	defaultRunnerPhone = "N/A"
)

type PlaceOrderInput struct {
	Canteen          string
	DeliveryLocation string
	Items            []string
}

type OrderService struct {
	db  *gorm.DB
	pub events.Publisher
	log *zap.Logger
}

func NewOrderService(db *gorm.DB, pub events.Publisher, log *zap.Logger) *OrderService {
	return &OrderService{db: db, pub: pub, log: log.Named("orders")}
}

// Place stores a new pending order for the buyer. The buyer's name and phone
// are copied from the profile at this moment.
func (s *OrderService) Place(ctx context.Context, buyerID string, in PlaceOrderInput) (*models.Order, error) {
	items := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	if len(items) == 0 || len(items) != len(in.Items) {
		return nil, ErrEmptyItems
	}
	if !models.IsCanteen(in.Canteen) {
		return nil, ErrUnknownCanteen
	}
	if !models.IsLocation(in.DeliveryLocation) {
		return nil, ErrUnknownLocation
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		name, phone, err := buyerContact(tx, buyerID)
		if err != nil {
			return err
		}
		order = models.Order{
			UserID:           buyerID,
			UserName:         name,
			UserPhone:        phone,
			Canteen:          in.Canteen,
			Items:            items,
			DeliveryLocation: in.DeliveryLocation,
			Status:           models.StatusPending,
			Version:          1,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return tx.Create(&models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.StatusPending,
			ChangedBy: buyerID,
			Note:      "Order placed",
		}).Error
	})
	if err != nil {
		s.log.Error("failed to place order", zap.String("user_id", buyerID), zap.Error(err))
		return nil, err
	}

	metrics.OrderPlaced()
	s.publish(ctx, events.NewOrderEvent(events.OrderCreated, order, "", buyerID))
	return &order, nil
}

// buyerContact falls back to the account email when the profile is missing
// or has no name.
func buyerContact(tx *gorm.DB, buyerID string) (string, string, error) {
	p, err := findProfile(tx, buyerID)
	if err == nil {
		name := p.Name
		if name == "" {
			name = models.EmailName(p.Email)
		}
		return name, p.Phone, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return "", "", err
	}

	var account models.Account
	if err := tx.First(&account, "id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrProfileNotFound
		}
		return "", "", fmt.Errorf("load account: %w", err)
	}
	return models.EmailName(account.Email), "", nil
}

func (s *OrderService) ListForBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", buyerID).
		Order("created_at desc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// StatusSummary counts orders per status.
func StatusSummary(orders []models.Order) map[models.OrderStatus]int {
	summary := map[models.OrderStatus]int{
		models.StatusPending:   0,
		models.StatusPicked:    0,
		models.StatusDelivered: 0,
		models.StatusCancelled: 0,
	}
	for _, o := range orders {
		summary[o.Status]++
	}
	return summary
}

func (s *OrderService) GetForBuyer(ctx context.Context, buyerID, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.UserID != buyerID {
		return nil, ErrNotOrderOwner
	}
	return &order, nil
}

// Accept claims a pending order for the runner. Among concurrent accepts of
// the same order exactly one commits; the rest get ErrOrderConflict.
func (s *OrderService) Accept(ctx context.Context, runnerID, orderID string) (*models.Order, error) {
	order, from, err := s.transition(ctx, orderID, runnerID, statemachine.ActorRunner, models.StatusPicked, "Runner accepted the order",
		func(tx *gorm.DB, o *models.Order) (map[string]any, error) {
			if o.UserID == runnerID {
				return nil, ErrSelfAccept
			}
			name, phone := defaultRunnerName, defaultRunnerPhone
			p, err := findProfile(tx, runnerID)
			if err != nil && !errors.Is(err, ErrProfileNotFound) {
				return nil, err
			}
			if p != nil {
				if p.Name != "" {
					name = p.Name
				}
				if p.Phone != "" {
					phone = p.Phone
				}
			}
			return map[string]any{
				"runner_id":    runnerID,
				"runner_name":  name,
				"runner_phone": phone,
			}, nil
		})
	if err != nil {
		if errors.Is(err, ErrOrderConflict) {
			metrics.AcceptConflict()
			s.log.Info("accept lost", zap.String("order_id", orderID), zap.String("runner_id", runnerID), zap.Error(err))
		}
		return nil, err
	}
	s.publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, *order, from, runnerID))
	return order, nil
}

// Deliver completes a picked order when the typed code equals the buyer's
// code exactly. A wrong code changes nothing.
func (s *OrderService) Deliver(ctx context.Context, runnerID, orderID, code string) (*models.Order, error) {
	order, from, err := s.transition(ctx, orderID, runnerID, statemachine.ActorRunner, models.StatusDelivered, "Delivered with buyer code",
		func(tx *gorm.DB, o *models.Order) (map[string]any, error) {
			if o.RunnerID == nil || *o.RunnerID != runnerID {
				return nil, ErrNotAssignedRunner
			}
			if o.Status != models.StatusPicked {
				// surfaced as a conflict by the state machine check
				return nil, nil
			}
			buyer, err := findProfile(tx, o.UserID)
			if errors.Is(err, ErrProfileNotFound) {
				return nil, ErrBuyerNotFound
			}
			if err != nil {
				return nil, err
			}
			if subtle.ConstantTimeCompare([]byte(code), []byte(buyer.Code)) != 1 {
				return nil, ErrCodeMismatch
			}
			return map[string]any{}, nil
		})
	if err != nil {
		if errors.Is(err, ErrCodeMismatch) {
			metrics.CodeMismatch()
			s.log.Warn("delivery code mismatch", zap.String("order_id", orderID), zap.String("runner_id", runnerID))
		}
		return nil, err
	}
	s.publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, *order, from, runnerID))
	return order, nil
}

// Cancel withdraws the buyer's own order while nobody has claimed it.
func (s *OrderService) Cancel(ctx context.Context, buyerID, orderID string) (*models.Order, error) {
	order, from, err := s.transition(ctx, orderID, buyerID, statemachine.ActorBuyer, models.StatusCancelled, "Order cancelled by buyer",
		func(tx *gorm.DB, o *models.Order) (map[string]any, error) {
			if o.UserID != buyerID {
				return nil, ErrNotOrderOwner
			}
			return map[string]any{}, nil
		})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.NewOrderEvent(events.OrderStatusChanged, *order, from, buyerID))
	return order, nil
}

// guardFunc checks the loaded order and returns extra columns to set with the
// status change. A nil map with a nil error defers to the state machine.
type guardFunc func(tx *gorm.DB, o *models.Order) (map[string]any, error)

// transition runs load, guard, state machine check and a compare-and-swap
// update keyed on (status, version) inside one transaction.
func (s *OrderService) transition(ctx context.Context, orderID, actorID string, actor statemachine.Actor, to models.OrderStatus, note string, guard guardFunc) (*models.Order, models.OrderStatus, error) {
	var (
		order models.Order
		from  models.OrderStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order: %w", err)
		}
		from = order.Status

		fields, err := guard(tx, &order)
		if err != nil {
			return err
		}
		if err := statemachine.CanTransition(order.Status, to, actor); err != nil {
			return &ConflictError{OrderID: order.ID, Current: order.Status, Reason: err.Error()}
		}
		if fields == nil {
			fields = map[string]any{}
		}
		fields["status"] = to
		fields["version"] = gorm.Expr("version + 1")

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND version = ?", order.ID, order.Status, order.Version).
			Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return casConflict(tx, &order)
		}

		if err := tx.Create(&models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   to,
			ChangedBy:  actorID,
			Note:       note,
		}).Error; err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		order = models.Order{}
		return tx.First(&order, "id = ?", orderID).Error
	})
	if err != nil {
		return nil, "", err
	}

	metrics.OrderTransition(string(to))
	s.log.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actorID))
	return &order, from, nil
}

// casConflict reports a lost compare-and-swap with the status that won it.
func casConflict(tx *gorm.DB, stale *models.Order) error {
	var current models.Order
	if err := tx.Select("status").First(&current, "id = ?", stale.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("reload order: %w", err)
	}
	reason := "Order has already been picked or cancelled."
	if current.Status == models.StatusDelivered {
		reason = "Order has already been delivered."
	}
	return &ConflictError{OrderID: stale.ID, Current: current.Status, Reason: reason}
}

func (s *OrderService) publish(ctx context.Context, ev events.OrderEvent) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Error("failed to publish order event",
			zap.String("order_id", ev.Order.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
