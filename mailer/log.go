package mailer

import (
	"context"
	"strings"
)

// Logger is the subset of the auth logger the Log mailer needs
type Logger interface {
	Info(format string, args ...any)
}

// Log writes links to the logger instead of sending mail. Only meant for
// local development, the link grants access to the account.
type Log struct {
	logger    Logger
	publicURL string
}

func NewLog(logger Logger, publicURL string) *Log {
	return &Log{
		logger:    logger,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (l *Log) SendVerificationEmail(_ context.Context, to, token string) error {
	l.logger.Info("verification link for %s: %s", to, BuildLink(l.publicURL, VerifyEmailPath, token))
	return nil
}

func (l *Log) SendPasswordResetEmail(_ context.Context, to, token string) error {
	l.logger.Info("password reset link for %s: %s", to, BuildLink(l.publicURL, ResetPasswordPath, token))
	return nil
}
