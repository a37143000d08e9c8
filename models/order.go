package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus represents all possible states of a canteen order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPicked    OrderStatus = "picked"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID               string               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID           string               `json:"user_id" gorm:"index;not null"`
	Buyer            *Profile             `json:"-" gorm:"foreignKey:UserID;references:UserID"`
	UserName         string               `json:"user_name"`
	UserPhone        string               `json:"user_phone"`
	Canteen          string               `json:"canteen" gorm:"not null"`
	Items            []string             `json:"items" gorm:"serializer:json;not null"`
	DeliveryLocation string               `json:"delivery_location" gorm:"not null"`
	Status           OrderStatus          `json:"status" gorm:"type:varchar(20);index;not null;default:'pending'"`
	RunnerID         *string              `json:"runner_id,omitempty" gorm:"index"`
	RunnerName       string               `json:"runner_name,omitempty"`
	RunnerPhone      string               `json:"runner_phone,omitempty"`
	Version          int                  `json:"version" gorm:"not null;default:1"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time            `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time            `json:"updated_at" gorm:"autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// OrderStatusHistory tracks every status change of an order
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    string      `json:"order_id" gorm:"index;not null"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  string      `json:"changed_by"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}
