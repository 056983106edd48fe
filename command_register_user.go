package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// commandTimeout bounds a whole command, store calls have their own limit
const commandTimeout = time.Second * 10

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

// passwordRules caps the length at bcrypt's 72 byte input limit
var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(MinPasswordLength, 72),
}

type RegisterUserMessage struct {
	Email      string `json:"email" example:"alice@example.com" doc:"Account email."`
	Password   string `json:"password" example:"Sup3rSecret!" doc:"Password, at least 8 characters."`
	OnResponse func(user *User) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&e.Password, passwordRules...),
	)
}

type RegisterUserHandler struct {
	repo             RepositoryManager
	hasher           PasswordAuthenticator
	verification     *VerificationManager
	mailer           Mailer
	verifyTTL        time.Duration
	deterministicIDs bool
	activity         ActivitySink
	logger           Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, cfg Config) *RegisterUserHandler {
	ttl := cfg.GetEmailVerifyTTL()
	if ttl <= 0 {
		ttl = DefaultEmailVerifyTTL
	}
	return &RegisterUserHandler{
		repo:             repo,
		hasher:           NewBcryptHasher(cfg.GetBcryptCost()),
		verification:     NewVerificationManager(repo),
		mailer:           noopMailer{},
		verifyTTL:        ttl,
		deterministicIDs: cfg.GetDeterministicIDs(),
		activity:         noopActivitySink{},
		logger:           defLogger{},
	}
}

// WithMailer sets the mailer used to deliver the verification link.
func (h *RegisterUserHandler) WithMailer(m Mailer) *RegisterUserHandler {
	if m != nil {
		h.mailer = m
	}
	return h
}

// WithHasher overrides the password hasher.
func (h *RegisterUserHandler) WithHasher(hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher != nil {
		h.hasher = hasher
	}
	return h
}

// WithVerificationManager overrides the token manager, e.g. one with a test clock.
func (h *RegisterUserHandler) WithVerificationManager(m *VerificationManager) *RegisterUserHandler {
	if m != nil {
		h.verification = m
	}
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return WrapInfrastructure(ctx.Err(), "context cancelled during user registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return FromValidation(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		return err
	}

	user := &User{
		Email:        NormalizeEmail(event.Email),
		PasswordHash: hash,
	}

	if h.deterministicIDs {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	var token string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		if err := h.repo.Settings().CreateTx(ctx, tx, DefaultSettings(user.ID)); err != nil {
			return err
		}

		token, err = h.verification.IssueTx(ctx, tx, user.ID, PurposeEmailVerify, h.verifyTTL)
		return err
	})
	if err != nil {
		return err
	}

	// the account exists at this point, a lost email is recovered by resend
	if err := h.mailer.SendVerificationEmail(ctx, user.Email, token); err != nil {
		h.logger.Warn("registration verification email failed for user %s: %v", user.ID, err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
