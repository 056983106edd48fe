package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/gomail.v2"
)

const (
	VerifyEmailPath   = "/verify-email"
	ResetPasswordPath = "/reset-password"
)

// Dialer sends fully built messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config describes the SMTP relay and the public URL used in links
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	PublicURL string
}

// SMTP delivers account emails through an SMTP relay
type SMTP struct {
	dialer    Dialer
	from      string
	publicURL string
}

func NewSMTP(cfg Config) *SMTP {
	return NewSMTPWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg)
}

func NewSMTPWithDialer(dialer Dialer, cfg Config) *SMTP {
	return &SMTP{
		dialer:    dialer,
		from:      cfg.From,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}
}

func (s *SMTP) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := BuildLink(s.publicURL, VerifyEmailPath, token)
	body := fmt.Sprintf(`
		<h3>Confirm your email</h3>
		<p>Follow the link below to verify your email address.</p>
		<p><a href="%s">%s</a></p>
		<p>If you did not create an account, you can ignore this email.</p>
	`, link, link)
	return s.send(ctx, to, "Verify your email", body)
}

func (s *SMTP) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link := BuildLink(s.publicURL, ResetPasswordPath, token)
	body := fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>We received a request to reset the password for your account.</p>
		<p><a href="%s">%s</a></p>
		<p>If you did not request this change, you can ignore this email.</p>
	`, link, link)
	return s.send(ctx, to, "Password reset request", body)
}

func (s *SMTP) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %q email: %w", subject, err)
	}
	return nil
}

// BuildLink appends path and the escaped token to base
func BuildLink(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + url.QueryEscape(token)
}
