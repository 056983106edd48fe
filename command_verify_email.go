package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Token from the verification link."`
	OnResponse func(user *User) `json:"-"`
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailHandler struct {
	repo         RepositoryManager
	verification *VerificationManager
	activity     ActivitySink
	logger       Logger
}

func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:         repo,
		verification: NewVerificationManager(repo),
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *VerifyEmailHandler) WithVerificationManager(m *VerificationManager) *VerifyEmailHandler {
	if m != nil {
		h.verification = m
	}
	return h
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return WrapInfrastructure(ctx.Err(), "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	if err := validation.Validate(event.Token, validation.Required); err != nil {
		return ErrVerificationTokenInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var (
		userID uuid.UUID
		user   *User
	)
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		userID, err = h.verification.ConsumeTx(ctx, tx, event.Token, PurposeEmailVerify)
		if err != nil {
			return err
		}
		if err := h.repo.Users().MarkEmailVerifiedTx(ctx, tx, userID); err != nil {
			return err
		}
		user, err = h.repo.Users().GetByIDTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		if IsRecordNotFound(err) {
			return ErrVerificationTokenInvalid
		}
		return err
	}

	h.recordActivity(ctx, userID)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *VerifyEmailHandler) recordActivity(ctx context.Context, userID uuid.UUID) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     userActor(userID.String()),
		UserID:    userID.String(),
	})
}
