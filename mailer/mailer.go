// Package mailer delivers the one-time links of the auth flow.
package mailer

//go:generate mockgen -source=mailer.go -destination=mock_mailer.go -package=mailer

import (
	"context"

	"go.uber.org/zap"
)

type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes the tokens to the log instead of sending mail.
type LogMailer struct {
	log *zap.Logger
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log.Named("mailer")}
}

func (m *LogMailer) SendVerification(ctx context.Context, email, token string) error {
	m.log.Info("verification email", zap.String("to", email), zap.String("token", token))
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.log.Info("password reset email", zap.String("to", email), zap.String("token", token))
	return nil
}
