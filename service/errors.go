package service

import (
	"errors"

	"canteen-runner-api/models"
	"canteen-runner-api/statemachine"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderConflict      = errors.New("order has already been picked or cancelled")
	ErrNotOrderOwner      = errors.New("this order does not belong to you")
	ErrNotAssignedRunner  = errors.New("you are not the runner for this order")
	ErrSelfAccept         = errors.New("you cannot accept your own order")
	ErrCodeMismatch       = errors.New("incorrect 6-digit code")
	ErrEmptyItems         = errors.New("order must contain at least one item")
	ErrUnknownCanteen     = errors.New("unknown canteen")
	ErrUnknownLocation    = errors.New("unknown delivery location")
	ErrBuyerNotFound      = errors.New("buyer not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidInput       = errors.New("invalid input")
)

// ConflictError reports an order that is no longer in the state an action
// needs. It matches ErrOrderConflict with errors.Is.
type ConflictError struct {
	OrderID string
	Current models.OrderStatus
	Reason  string
}

func (e *ConflictError) Error() string {
	return "order " + e.OrderID + " is " + string(e.Current) + ": " + e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrOrderConflict
}

// ValidNext lists where the order could still go from its current status.
func (e *ConflictError) ValidNext() []models.OrderStatus {
	return statemachine.ValidTransitionsFrom(e.Current)
}
