package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"canteen-runner-api/config"
	"canteen-runner-api/events"
	"canteen-runner-api/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.InitDB(config.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "canteen_test.db"),
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// seedUser writes a verified account with its profile.
func seedUser(t *testing.T, db *gorm.DB, email, name, phone string) *models.Profile {
	t.Helper()
	account := models.Account{Email: email, PasswordHash: "x", EmailVerified: true}
	require.NoError(t, db.Create(&account).Error)
	code, err := GenerateCode()
	require.NoError(t, err)
	p := models.Profile{UserID: account.ID, Name: name, Email: email, Phone: phone, Code: code, Verified: true}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *capturePublisher) Publish(ctx context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) all() []events.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.OrderEvent(nil), p.events...)
}

func newOrderService(t *testing.T) (*OrderService, *gorm.DB, *capturePublisher) {
	t.Helper()
	db := newTestDB(t)
	pub := &capturePublisher{}
	return NewOrderService(db, pub, zap.NewNop()), db, pub
}

func placeDosa(t *testing.T, svc *OrderService, buyerID string) *models.Order {
	t.Helper()
	order, err := svc.Place(context.Background(), buyerID, PlaceOrderInput{
		Canteen:          "Sopanam Canteen",
		DeliveryLocation: "Main Gate",
		Items:            []string{"Dosa"},
	})
	require.NoError(t, err)
	return order
}
