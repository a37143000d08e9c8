package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is the auth-side identity. Its ID is the opaque user id every other
// table refers to.
type Account struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email         string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash  string    `json:"-" gorm:"not null"`
	EmailVerified bool      `json:"email_verified" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Profile is the user document shown to buyers and runners. Code is the
// 6-digit delivery secret, assigned once when the profile is created.
type Profile struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Code      string    `json:"code" gorm:"type:varchar(6);not null"`
	Verified  bool      `json:"verified" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailName derives a display name from an email address.
func EmailName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// TokenPurpose tells what a one-time auth token may be redeemed for.
type TokenPurpose string

const (
	PurposeVerifyEmail   TokenPurpose = "verify_email"
	PurposeResetPassword TokenPurpose = "reset_password"
)

type AuthToken struct {
	Token     string       `gorm:"primaryKey;type:varchar(36)"`
	AccountID string       `gorm:"index;not null"`
	Purpose   TokenPurpose `gorm:"type:varchar(20);not null"`
	ExpiresAt time.Time    `gorm:"index;not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RevokedToken blacklists a session JWT by its jti until it would have
// expired anyway.
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;type:varchar(36)"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}
