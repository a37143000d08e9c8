package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"canteen-runner-api/config"
	"canteen-runner-api/mailer"
	"canteen-runner-api/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Session is what the client learns about the signed-in user.
type Session struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Verified     bool   `json:"verified"`
	NeedsDetails bool   `json:"needs_details"`
}

type AuthService struct {
	db     *gorm.DB
	mailer mailer.Mailer
	cfg    config.AuthConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, m mailer.Mailer, cfg config.AuthConfig, log *zap.Logger) *AuthService {
	return &AuthService{
		db:     db,
		mailer: m,
		cfg:    cfg,
		log:    log.Named("auth"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the account, its profile and a verification token, then
// mails the token. A mail failure is logged; the user can ask for a resend.
func (s *AuthService) Register(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		account models.Account
		profile *models.Profile
		token   string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Account{}).Where("email = ?", email).Count(&n).Error; err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if n > 0 {
			return ErrEmailTaken
		}

		account = models.Account{Email: email, PasswordHash: string(hash)}
		if err := createAccount(tx, &account); err != nil {
			return err
		}
		if profile, err = createProfile(tx, &account); err != nil {
			return err
		}
		token, err = s.issueToken(tx, account.ID, models.PurposeVerifyEmail)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendVerification(ctx, account.Email, token); err != nil {
		s.log.Warn("failed to send verification email", zap.String("account_id", account.ID), zap.Error(err))
	}
	s.log.Info("account registered", zap.String("account_id", account.ID))
	return newSession(&account, profile), nil
}

// createAccount inserts the account. A concurrent registration that won the
// unique email index surfaces as ErrEmailTaken.
func createAccount(tx *gorm.DB, account *models.Account) error {
	err := tx.Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Login checks the password and, when configured, the verified flag. An
// account without a profile gets one here.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	db := s.db.WithContext(ctx)

	var account models.Account
	if err := db.First(&account, "email = ?", normalizeEmail(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.cfg.RequireVerifiedEmail && !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	profile, err := findProfile(db, account.ID)
	if errors.Is(err, ErrProfileNotFound) {
		profile, err = createProfile(db, &account)
	}
	if err != nil {
		return nil, err
	}
	return newSession(&account, profile), nil
}

func (s *AuthService) Session(ctx context.Context, accountID string) (*Session, error) {
	db := s.db.WithContext(ctx)
	var account models.Account
	if err := db.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	profile, err := findProfile(db, account.ID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}
	return newSession(&account, profile), nil
}

func newSession(a *models.Account, p *models.Profile) *Session {
	sess := &Session{ID: a.ID, Email: a.Email, Verified: a.EmailVerified, NeedsDetails: true}
	if p != nil {
		sess.Name = p.Name
		sess.NeedsDetails = p.Phone == ""
	}
	return sess
}

// SendVerification mails a fresh verification token. Unknown or already
// verified addresses are ignored so the endpoint does not leak accounts.
func (s *AuthService) SendVerification(ctx context.Context, email string) error {
	account, err := s.accountByEmail(ctx, email)
	if err != nil || account == nil || account.EmailVerified {
		return err
	}
	token, err := s.issueToken(s.db.WithContext(ctx), account.ID, models.PurposeVerifyEmail)
	if err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, account.Email, token)
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.redeemToken(tx, token, models.PurposeVerifyEmail)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", t.AccountID).Update("email_verified", true).Error; err != nil {
			return fmt.Errorf("verify account: %w", err)
		}
		if err := tx.Model(&models.Profile{}).Where("user_id = ?", t.AccountID).Update("verified", true).Error; err != nil {
			return fmt.Errorf("verify profile: %w", err)
		}
		return nil
	})
}

func (s *AuthService) SendPasswordReset(ctx context.Context, email string) error {
	account, err := s.accountByEmail(ctx, email)
	if err != nil || account == nil {
		return err
	}
	token, err := s.issueToken(s.db.WithContext(ctx), account.ID, models.PurposeResetPassword)
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, account.Email, token)
}

func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.redeemToken(tx, token, models.PurposeResetPassword)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Account{}).Where("id = ?", t.AccountID).Update("password_hash", string(hash)).Error; err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		return nil
	})
}

// Revoke blacklists a session token id until it expires.
func (s *AuthService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RevokedToken{JTI: jti, ExpiresAt: expiresAt.UTC()}).Error
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&n).Error
	return n > 0, err
}

// PurgeExpired drops spent or expired one-time tokens and revocations that
// outlived their JWT.
func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	tokens := db.Where("expires_at < ? OR used_at IS NOT NULL", now).Delete(&models.AuthToken{})
	if tokens.Error != nil {
		return 0, fmt.Errorf("purge auth tokens: %w", tokens.Error)
	}
	revoked := db.Where("expires_at < ?", now).Delete(&models.RevokedToken{})
	if revoked.Error != nil {
		return tokens.RowsAffected, fmt.Errorf("purge revoked tokens: %w", revoked.Error)
	}
	return tokens.RowsAffected + revoked.RowsAffected, nil
}

func (s *AuthService) accountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &account, nil
}

func (s *AuthService) issueToken(db *gorm.DB, accountID string, purpose models.TokenPurpose) (string, error) {
	t := models.AuthToken{
		Token:     uuid.NewString(),
		AccountID: accountID,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL),
	}
	if err := db.Create(&t).Error; err != nil {
		return "", fmt.Errorf("issue %s token: %w", purpose, err)
	}
	return t.Token, nil
}

func (s *AuthService) redeemToken(tx *gorm.DB, token string, purpose models.TokenPurpose) (*models.AuthToken, error) {
	now := s.now()
	res := tx.Model(&models.AuthToken{}).
		Where("token = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?", token, purpose, now).
		Update("used_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("redeem token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}
	var t models.AuthToken
	if err := tx.First(&t, "token = ?", token).Error; err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &t, nil
}
