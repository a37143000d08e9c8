package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"canteen-runner-api/models"

	"gorm.io/gorm"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// GenerateCode returns a uniformly random 6-digit delivery code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

type ProfileService struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return findProfile(s.db.WithContext(ctx), userID)
}

// UpdateDetails sets both name and phone, as the first-login details form does.
func (s *ProfileService) UpdateDetails(ctx context.Context, userID, name, phone string) (*models.Profile, error) {
	name, phone = strings.TrimSpace(name), strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return nil, fmt.Errorf("%w: name and phone are required", ErrInvalidInput)
	}
	return s.update(ctx, userID, map[string]any{"name": name, "phone": phone})
}

func (s *ProfileService) UpdateName(ctx context.Context, userID, name string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return s.update(ctx, userID, map[string]any{"name": name})
}

func (s *ProfileService) update(ctx context.Context, userID string, fields map[string]any) (*models.Profile, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.Profile{}).Where("user_id = ?", userID).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrProfileNotFound
	}
	return findProfile(db, userID)
}

func findProfile(db *gorm.DB, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := db.First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

// createProfile writes the profile document for a fresh account. The code is
// issued here and never changes afterwards.
func createProfile(db *gorm.DB, account *models.Account) (*models.Profile, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	p := &models.Profile{
		UserID:   account.ID,
		Name:     models.EmailName(account.Email),
		Email:    account.Email,
		Code:     code,
		Verified: account.EmailVerified,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}
