package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"canteen-runner-api/events"
	"canteen-runner-api/models"
	"canteen-runner-api/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPlace(t *testing.T) {
	svc, db, pub := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")

	order := placeDosa(t, svc, buyer.UserID)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, []string{"Dosa"}, order.Items)
	assert.Equal(t, "Asha", order.UserName)
	assert.Equal(t, "9000000001", order.UserPhone)
	assert.Equal(t, 1, order.Version)
	assert.Nil(t, order.RunnerID)
	assert.False(t, order.CreatedAt.IsZero())

	var history []models.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusPending, history[0].ToStatus)

	evs := pub.all()
	require.Len(t, evs, 1)
	assert.Equal(t, events.OrderCreated, evs[0].Type)
}

func TestPlaceRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   PlaceOrderInput
		wantErr error
	}{
		{
			name:    "empty items",
			input:   PlaceOrderInput{Canteen: "MBA Canteen", DeliveryLocation: "Library"},
			wantErr: ErrEmptyItems,
		},
		{
			name:    "blank item",
			input:   PlaceOrderInput{Canteen: "MBA Canteen", DeliveryLocation: "Library", Items: []string{"Tea", "  "}},
			wantErr: ErrEmptyItems,
		},
		{
			name:    "unknown canteen",
			input:   PlaceOrderInput{Canteen: "Food Court", DeliveryLocation: "Library", Items: []string{"Tea"}},
			wantErr: ErrUnknownCanteen,
		},
		{
			name:    "unknown location",
			input:   PlaceOrderInput{Canteen: "MBA Canteen", DeliveryLocation: "Rooftop", Items: []string{"Tea"}},
			wantErr: ErrUnknownLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, pub := newOrderService(t)
			buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")

			_, err := svc.Place(context.Background(), buyer.UserID, tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			var n int64
			db.Model(&models.Order{}).Count(&n)
			assert.Zero(t, n)
			assert.Empty(t, pub.all())
		})
	}
}

func TestPlaceFallsBackToEmailName(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "ravi.k@campus.edu", "", "")

	order := placeDosa(t, svc, buyer.UserID)
	assert.Equal(t, "ravi.k", order.UserName)

	// no profile at all, only the account
	account := models.Account{Email: "meena@campus.edu", PasswordHash: "x"}
	require.NoError(t, db.Create(&account).Error)
	order = placeDosa(t, svc, account.ID)
	assert.Equal(t, "meena", order.UserName)
	assert.Empty(t, order.UserPhone)
}

func TestAccept(t *testing.T) {
	svc, db, pub := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	order := placeDosa(t, svc, buyer.UserID)

	got, err := svc.Accept(context.Background(), runner.UserID, order.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusPicked, got.Status)
	require.NotNil(t, got.RunnerID)
	assert.Equal(t, runner.UserID, *got.RunnerID)
	assert.Equal(t, "Ravi", got.RunnerName)
	assert.Equal(t, "9000000002", got.RunnerPhone)
	assert.Equal(t, 2, got.Version)

	evs := pub.all()
	require.Len(t, evs, 2)
	assert.Equal(t, events.OrderStatusChanged, evs[1].Type)
	assert.Equal(t, models.StatusPending, evs[1].FromStatus)
}

func TestAcceptDefaultsRunnerContact(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "", "")
	order := placeDosa(t, svc, buyer.UserID)

	got, err := svc.Accept(context.Background(), runner.UserID, order.ID)

	require.NoError(t, err)
	assert.Equal(t, "Unnamed", got.RunnerName)
	assert.Equal(t, "N/A", got.RunnerPhone)
}

func TestAcceptRejections(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	other := seedUser(t, db, "sam@campus.edu", "Sam", "9000000003")
	ctx := context.Background()

	t.Run("missing order", func(t *testing.T) {
		_, err := svc.Accept(ctx, runner.UserID, "does-not-exist")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("own order", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		_, err := svc.Accept(ctx, buyer.UserID, order.ID)
		assert.ErrorIs(t, err, ErrSelfAccept)
	})

	t.Run("already picked", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		_, err := svc.Accept(ctx, runner.UserID, order.ID)
		require.NoError(t, err)

		_, err = svc.Accept(ctx, other.UserID, order.ID)

		assert.ErrorIs(t, err, ErrOrderConflict)
		var ce *ConflictError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, models.StatusPicked, ce.Current)

		var stored models.Order
		require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
		assert.Equal(t, runner.UserID, *stored.RunnerID)
	})

	t.Run("cancelled", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		_, err := svc.Cancel(ctx, buyer.UserID, order.ID)
		require.NoError(t, err)

		_, err = svc.Accept(ctx, runner.UserID, order.ID)
		assert.ErrorIs(t, err, ErrOrderConflict)
	})
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runners := []*models.Profile{
		seedUser(t, db, "r1@campus.edu", "R1", "1"),
		seedUser(t, db, "r2@campus.edu", "R2", "2"),
		seedUser(t, db, "r3@campus.edu", "R3", "3"),
		seedUser(t, db, "r4@campus.edu", "R4", "4"),
	}
	order := placeDosa(t, svc, buyer.UserID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
		start     = make(chan struct{})
	)
	for _, r := range runners {
		wg.Add(1)
		go func(runnerID string) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(context.Background(), runnerID, order.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, runnerID)
			case errors.Is(err, ErrOrderConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(r.UserID)
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, len(runners)-1, conflicts)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, models.StatusPicked, stored.Status)
	assert.Equal(t, winners[0], *stored.RunnerID)
	assert.Equal(t, 2, stored.Version)
}

func TestLostSwapReportsWinningStatus(t *testing.T) {
	svc, db, pub := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	order := placeDosa(t, svc, buyer.UserID)

	// a runner commits the pickup after the cancel has read the order
	pickedUnderneath := func(tx *gorm.DB, o *models.Order) (map[string]any, error) {
		err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
			"status":    models.StatusPicked,
			"runner_id": runner.UserID,
			"version":   gorm.Expr("version + 1"),
		}).Error
		return map[string]any{}, err
	}

	_, _, err := svc.transition(context.Background(), order.ID, buyer.UserID, statemachine.ActorBuyer,
		models.StatusCancelled, "Order cancelled by buyer", pickedUnderneath)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, ErrOrderConflict)
	assert.Equal(t, models.StatusPicked, conflict.Current)
	assert.Equal(t, []models.OrderStatus{models.StatusDelivered}, conflict.ValidNext())
	assert.Len(t, pub.all(), 1, "only order.created is published")
}

func TestDeliver(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	other := seedUser(t, db, "sam@campus.edu", "Sam", "9000000003")
	ctx := context.Background()

	order := placeDosa(t, svc, buyer.UserID)
	_, err := svc.Accept(ctx, runner.UserID, order.ID)
	require.NoError(t, err)

	wrong := "000000"
	if buyer.Code == wrong {
		wrong = "111111"
	}

	t.Run("not the runner", func(t *testing.T) {
		_, err := svc.Deliver(ctx, other.UserID, order.ID, buyer.Code)
		assert.ErrorIs(t, err, ErrNotAssignedRunner)
	})

	t.Run("wrong code leaves order picked", func(t *testing.T) {
		_, err := svc.Deliver(ctx, runner.UserID, order.ID, wrong)
		assert.ErrorIs(t, err, ErrCodeMismatch)

		var stored models.Order
		require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
		assert.Equal(t, models.StatusPicked, stored.Status)
		assert.Equal(t, 2, stored.Version)
	})

	t.Run("matching code delivers", func(t *testing.T) {
		got, err := svc.Deliver(ctx, runner.UserID, order.ID, buyer.Code)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDelivered, got.Status)
		assert.Equal(t, 3, got.Version)
	})

	t.Run("delivered is final", func(t *testing.T) {
		_, err := svc.Deliver(ctx, runner.UserID, order.ID, buyer.Code)
		assert.ErrorIs(t, err, ErrOrderConflict)
	})
}

func TestDeliverPendingOrder(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	order := placeDosa(t, svc, buyer.UserID)

	_, err := svc.Deliver(context.Background(), runner.UserID, order.ID, buyer.Code)

	assert.ErrorIs(t, err, ErrNotAssignedRunner)
}

func TestDeliverMissingBuyerProfile(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	ctx := context.Background()
	order := placeDosa(t, svc, buyer.UserID)
	_, err := svc.Accept(ctx, runner.UserID, order.ID)
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.Profile{}, "user_id = ?", buyer.UserID).Error)

	_, err = svc.Deliver(ctx, runner.UserID, order.ID, buyer.Code)
	assert.ErrorIs(t, err, ErrBuyerNotFound)
}

func TestCancel(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	ctx := context.Background()

	t.Run("pending order", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		got, err := svc.Cancel(ctx, buyer.UserID, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
	})

	t.Run("not the owner", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		_, err := svc.Cancel(ctx, runner.UserID, order.ID)
		assert.ErrorIs(t, err, ErrNotOrderOwner)
	})

	t.Run("after pick", func(t *testing.T) {
		order := placeDosa(t, svc, buyer.UserID)
		_, err := svc.Accept(ctx, runner.UserID, order.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(ctx, buyer.UserID, order.ID)
		assert.ErrorIs(t, err, ErrOrderConflict)
	})
}

func TestBuyerReads(t *testing.T) {
	svc, db, _ := newOrderService(t)
	buyer := seedUser(t, db, "asha@campus.edu", "Asha", "9000000001")
	runner := seedUser(t, db, "ravi@campus.edu", "Ravi", "9000000002")
	ctx := context.Background()

	first := placeDosa(t, svc, buyer.UserID)
	second := placeDosa(t, svc, buyer.UserID)
	_, err := svc.Accept(ctx, runner.UserID, first.ID)
	require.NoError(t, err)

	orders, err := svc.ListForBuyer(ctx, buyer.UserID)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	summary := StatusSummary(orders)
	assert.Equal(t, 1, summary[models.StatusPending])
	assert.Equal(t, 1, summary[models.StatusPicked])
	assert.Equal(t, 0, summary[models.StatusDelivered])

	detail, err := svc.GetForBuyer(ctx, buyer.UserID, first.ID)
	require.NoError(t, err)
	require.Len(t, detail.StatusHistory, 2)
	assert.Equal(t, models.StatusPicked, detail.StatusHistory[1].ToStatus)

	_, err = svc.GetForBuyer(ctx, runner.UserID, second.ID)
	assert.ErrorIs(t, err, ErrNotOrderOwner)

	_, err = svc.GetForBuyer(ctx, buyer.UserID, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
