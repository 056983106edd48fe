package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/uptrace/bun"
)

// ResendVerificationMessage asks for a new email verification link
type ResendVerificationMessage struct {
	Email string `json:"email" example:"alice@example.com" doc:"Account email."`
}

func (e ResendVerificationMessage) Type() string { return "user.verification.resend" }

func (e ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type ResendVerificationHandler struct {
	repo         RepositoryManager
	verification *VerificationManager
	mailer       Mailer
	ttl          time.Duration
	logger       Logger
}

func NewResendVerificationHandler(repo RepositoryManager, cfg Config) *ResendVerificationHandler {
	ttl := cfg.GetEmailVerifyTTL()
	if ttl <= 0 {
		ttl = DefaultEmailVerifyTTL
	}
	return &ResendVerificationHandler{
		repo:         repo,
		verification: NewVerificationManager(repo),
		mailer:       noopMailer{},
		ttl:          ttl,
		logger:       defLogger{},
	}
}

func (h *ResendVerificationHandler) WithMailer(m Mailer) *ResendVerificationHandler {
	if m != nil {
		h.mailer = m
	}
	return h
}

func (h *ResendVerificationHandler) WithVerificationManager(m *VerificationManager) *ResendVerificationHandler {
	if m != nil {
		h.verification = m
	}
	return h
}

func (h *ResendVerificationHandler) WithLogger(logger Logger) *ResendVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return WrapInfrastructure(ctx.Err(), "context cancelled during verification resend")
	default:
		return h.execute(ctx, event)
	}
}

// execute replaces any outstanding verification token of the user, so only
// the most recent link works.
func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return FromValidation(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}

	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	var token string
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.VerificationTokens().DeleteForUserTx(ctx, tx, user.ID, PurposeEmailVerify); err != nil {
			return err
		}
		token, err = h.verification.IssueTx(ctx, tx, user.ID, PurposeEmailVerify, h.ttl)
		return err
	})
	if err != nil {
		return err
	}

	// the new token is stored, a failed send is retried by calling resend again
	if err := h.mailer.SendVerificationEmail(ctx, user.Email, token); err != nil {
		h.logger.Error("verification email failed for user %s: %v", user.ID, err)
	}

	return nil
}
