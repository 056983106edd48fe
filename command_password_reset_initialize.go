package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/uptrace/bun"
)

type RequestPasswordResetMessage struct {
	Email string `json:"email" example:"alice@example.com" doc:"Account email."`
}

func (p RequestPasswordResetMessage) Type() string { return "user.password_reset.request" }

func (p RequestPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

type RequestPasswordResetHandler struct {
	repo         RepositoryManager
	verification *VerificationManager
	mailer       Mailer
	ttl          time.Duration
	activity     ActivitySink
	logger       Logger
}

func NewRequestPasswordResetHandler(repo RepositoryManager, cfg Config) *RequestPasswordResetHandler {
	ttl := cfg.GetPasswordResetTTL()
	if ttl <= 0 {
		ttl = DefaultPasswordResetTTL
	}
	return &RequestPasswordResetHandler{
		repo:         repo,
		verification: NewVerificationManager(repo),
		mailer:       noopMailer{},
		ttl:          ttl,
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *RequestPasswordResetHandler) WithMailer(m Mailer) *RequestPasswordResetHandler {
	if m != nil {
		h.mailer = m
	}
	return h
}

func (h *RequestPasswordResetHandler) WithVerificationManager(m *VerificationManager) *RequestPasswordResetHandler {
	if m != nil {
		h.verification = m
	}
	return h
}

func (h *RequestPasswordResetHandler) WithActivitySink(sink ActivitySink) *RequestPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RequestPasswordResetHandler) WithLogger(logger Logger) *RequestPasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return WrapInfrastructure(ctx.Err(), "context cancelled during password reset request")
	default:
		return h.execute(ctx, event)
	}
}

// execute never tells the caller whether the email exists. Malformed input
// is still rejected.
func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return FromValidation(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if IsRecordNotFound(err) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return err
	}

	var token string
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.VerificationTokens().DeleteForUserTx(ctx, tx, user.ID, PurposePasswordReset); err != nil {
			return err
		}
		token, err = h.verification.IssueTx(ctx, tx, user.ID, PurposePasswordReset, h.ttl)
		return err
	})
	if err != nil {
		return err
	}

	if err := h.mailer.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		h.logger.Error("password reset email failed for user %s: %v", user.ID, err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	return nil
}
