package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ConfirmPasswordResetMessage struct {
	Token       string `json:"token" doc:"Token from the reset link."`
	NewPassword string `json:"new_password" example:"N3wSecret!" doc:"New password."`
}

func (m ConfirmPasswordResetMessage) Type() string { return "user.password_reset.confirm" }

func (m ConfirmPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.NewPassword, passwordRules...),
	)
}

type ConfirmPasswordResetHandler struct {
	repo         RepositoryManager
	hasher       PasswordAuthenticator
	verification *VerificationManager
	activity     ActivitySink
	logger       Logger
}

// NewConfirmPasswordResetHandler creates a handler with sane defaults.
func NewConfirmPasswordResetHandler(repo RepositoryManager, cfg Config) *ConfirmPasswordResetHandler {
	return &ConfirmPasswordResetHandler{
		repo:         repo,
		hasher:       NewBcryptHasher(cfg.GetBcryptCost()),
		verification: NewVerificationManager(repo),
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *ConfirmPasswordResetHandler) WithHasher(hasher PasswordAuthenticator) *ConfirmPasswordResetHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

func (h *ConfirmPasswordResetHandler) WithVerificationManager(m *VerificationManager) *ConfirmPasswordResetHandler {
	if m != nil {
		h.verification = m
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *ConfirmPasswordResetHandler) WithActivitySink(sink ActivitySink) *ConfirmPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmPasswordResetHandler) WithLogger(logger Logger) *ConfirmPasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmPasswordResetHandler) Execute(ctx context.Context, event ConfirmPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return WrapInfrastructure(ctx.Err(), "context cancelled during password reset confirmation")
	default:
		return h.execute(ctx, event)
	}
}

// execute validates the new password before touching the token, a rejected
// password does not burn the link.
func (h *ConfirmPasswordResetHandler) execute(ctx context.Context, event ConfirmPasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return FromValidation(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	passwordHash, err := h.hasher.Hash(event.NewPassword)
	if err != nil {
		return err
	}

	var userID uuid.UUID
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		userID, err = h.verification.ConsumeTx(ctx, tx, event.Token, PurposePasswordReset)
		if err != nil {
			return err
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, userID, passwordHash); err != nil {
			if IsRecordNotFound(err) {
				return ErrVerificationTokenInvalid
			}
			return err
		}

		// a completed reset also proves ownership of the email
		if err := h.repo.Users().MarkEmailVerifiedTx(ctx, tx, userID); err != nil {
			return err
		}

		_, err = h.repo.VerificationTokens().DeleteForUserTx(ctx, tx, userID, PurposePasswordReset)
		return err
	})
	if err != nil {
		return err
	}

	h.recordActivity(ctx, userID)

	return nil
}

func (h *ConfirmPasswordResetHandler) recordActivity(ctx context.Context, userID uuid.UUID) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     userActor(userID.String()),
		UserID:    userID.String(),
		Metadata: map[string]any{
			"reset_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
