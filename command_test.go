package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/promptlift/go-auth"
)

func TestRegisterUserHandler(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mailer := newCaptureMailer()
	sink := &captureSink{}

	handler := auth.NewRegisterUserHandler(repo, newTestConfig()).
		WithMailer(mailer).
		WithActivitySink(sink).
		WithLogger(&testLogger{})

	var created *auth.User
	err := handler.Execute(ctx, auth.RegisterUserMessage{
		Email:      " Alice@Example.com ",
		Password:   "Sup3rSecret!",
		OnResponse: func(user *auth.User) { created = user },
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.EmailVerified)
	assert.NotEqual(t, "Sup3rSecret!", created.PasswordHash)

	settings, found, err := repo.Settings().Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found, "settings are created with the account")
	assert.Equal(t, auth.DefaultPreferredModel, settings.PreferredModel)

	assert.NotEmpty(t, mailer.verifyToken("alice@example.com"))
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventUserRegistered}, sink.types())

	err = handler.Execute(ctx, auth.RegisterUserMessage{Email: "ALICE@example.com", Password: "An0therSecret"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Equal(t, 409, auth.HTTPStatus(err))
}

func TestRegisterUserHandlerValidation(t *testing.T) {
	handler := auth.NewRegisterUserHandler(newTestRepo(t), newTestConfig())

	tests := []struct {
		name  string
		msg   auth.RegisterUserMessage
		field string
	}{
		{name: "bad email", msg: auth.RegisterUserMessage{Email: "alice", Password: "Sup3rSecret!"}, field: "email"},
		{name: "short password", msg: auth.RegisterUserMessage{Email: "alice@example.com", Password: "short"}, field: "password"},
		{name: "empty", msg: auth.RegisterUserMessage{}, field: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(context.Background(), tt.msg)

			var richErr *goerrors.Error
			require.True(t, errors.As(err, &richErr))
			assert.Equal(t, auth.CategoryValidation, richErr.Category)
			assert.Contains(t, richErr.ValidationMap(), tt.field)
		})
	}
}

func TestRegisterUserHandlerDeterministicIDs(t *testing.T) {
	cfg := newTestConfig()
	cfg.deterministicIDs = true

	var created *auth.User
	err := auth.NewRegisterUserHandler(newTestRepo(t), cfg).Execute(context.Background(), auth.RegisterUserMessage{
		Email:      "alice@example.com",
		Password:   "Sup3rSecret!",
		OnResponse: func(user *auth.User) { created = user },
	})
	require.NoError(t, err)

	want, err := hashid.NewUUID("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, created.ID)
}

func TestRegisterUserHandlerMailFailureKeepsAccount(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	mailer := &MockMailer{}
	mailer.On("SendVerificationEmail", mock.Anything, "alice@example.com", mock.Anything).Return(errors.New("smtp down"))

	err := auth.NewRegisterUserHandler(repo, newTestConfig()).
		WithMailer(mailer).
		WithLogger(&testLogger{}).
		Execute(ctx, auth.RegisterUserMessage{Email: "alice@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)

	_, err = repo.Users().GetByEmail(ctx, "alice@example.com")
	assert.NoError(t, err)
	mailer.AssertExpectations(t)
}

func TestRegisterUserHandlerConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	handler := auth.NewRegisterUserHandler(repo, newTestConfig()).WithMailer(newCaptureMailer())

	const workers = 6
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = handler.Execute(ctx, auth.RegisterUserMessage{
				Email:    "alice@example.com",
				Password: "Sup3rSecret!",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	}
	assert.Equal(t, 1, succeeded)

	_, err := repo.Users().GetByEmail(ctx, "alice@example.com")
	assert.NoError(t, err)
}

func TestResendVerificationMailFailureSucceeds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	createUser(t, repo, "alice@example.com", "Sup3rSecret!")

	mailer := &MockMailer{}
	mailer.On("SendVerificationEmail", mock.Anything, "alice@example.com", mock.Anything).Return(errors.New("smtp down"))

	err := auth.NewResendVerificationHandler(repo, newTestConfig()).
		WithMailer(mailer).
		WithLogger(&testLogger{}).
		Execute(ctx, auth.ResendVerificationMessage{Email: "alice@example.com"})
	require.NoError(t, err, "delivery failures are logged like on registration")

	token := mailer.Calls[0].Arguments.String(2)
	require.NotEmpty(t, token)

	err = auth.NewVerifyEmailHandler(repo).Execute(ctx, auth.VerifyEmailMessage{Token: token})
	assert.NoError(t, err, "the token was stored before the send")
	mailer.AssertExpectations(t)
}

func TestCommandsRespectCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := auth.NewRegisterUserHandler(repo, newTestConfig()).
		Execute(ctx, auth.RegisterUserMessage{Email: "alice@example.com", Password: "Sup3rSecret!"})
	assert.True(t, auth.IsCategory(err, auth.CategoryInfrastructure))

	err = auth.NewVerifyEmailHandler(repo).Execute(ctx, auth.VerifyEmailMessage{Token: "x"})
	assert.True(t, auth.IsCategory(err, auth.CategoryInfrastructure))
}

func TestVerifyEmailFlow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	mailer := newCaptureMailer()
	sink := &captureSink{}
	cfg := newTestConfig()

	require.NoError(t, auth.NewRegisterUserHandler(repo, cfg).WithMailer(mailer).
		Execute(ctx, auth.RegisterUserMessage{Email: "alice@example.com", Password: "Sup3rSecret!"}))
	first := mailer.verifyToken("alice@example.com")

	resend := auth.NewResendVerificationHandler(repo, cfg).WithMailer(mailer)
	require.NoError(t, resend.Execute(ctx, auth.ResendVerificationMessage{Email: "alice@example.com"}))
	second := mailer.verifyToken("alice@example.com")
	assert.NotEqual(t, first, second)

	verify := auth.NewVerifyEmailHandler(repo).WithActivitySink(sink)

	err := verify.Execute(ctx, auth.VerifyEmailMessage{Token: first})
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid, "resend invalidates older links")

	var verified *auth.User
	err = verify.Execute(ctx, auth.VerifyEmailMessage{
		Token:      second,
		OnResponse: func(user *auth.User) { verified = user },
	})
	require.NoError(t, err)
	require.NotNil(t, verified)
	assert.True(t, verified.EmailVerified)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventEmailVerified}, sink.types())

	err = verify.Execute(ctx, auth.VerifyEmailMessage{Token: second})
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid, "links are single use")

	err = resend.Execute(ctx, auth.ResendVerificationMessage{Email: "alice@example.com"})
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)

	err = resend.Execute(ctx, auth.ResendVerificationMessage{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	err = verify.Execute(ctx, auth.VerifyEmailMessage{})
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")

	now := time.Now().UTC()
	manager := auth.NewVerificationManager(repo).WithClock(func() time.Time { return now })
	token, err := manager.Issue(ctx, user.ID, auth.PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	verify := auth.NewVerifyEmailHandler(repo).WithVerificationManager(manager)

	err = verify.Execute(ctx, auth.VerifyEmailMessage{Token: token})
	assert.ErrorIs(t, err, auth.ErrVerificationTokenExpired)

	stored, err := repo.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)
}

// markFailUsers fails the verified flag update after the token was consumed
type markFailUsers struct {
	auth.Users
}

func (markFailUsers) MarkEmailVerifiedTx(context.Context, bun.IDB, uuid.UUID) error {
	return errors.New("disk full")
}

type markFailRepo struct {
	auth.RepositoryManager
}

func (r markFailRepo) Users() auth.Users {
	return markFailUsers{Users: r.RepositoryManager.Users()}
}

func TestVerifyEmailKeepsTokenWhenUpdateFails(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")

	token, err := auth.NewVerificationManager(repo).Issue(ctx, user.ID, auth.PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	err = auth.NewVerifyEmailHandler(markFailRepo{repo}).Execute(ctx, auth.VerifyEmailMessage{Token: token})
	require.Error(t, err)

	stored, err := repo.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)

	err = auth.NewVerifyEmailHandler(repo).Execute(ctx, auth.VerifyEmailMessage{Token: token})
	require.NoError(t, err, "the failed attempt rolled the consume back")

	stored, err = repo.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	cfg := newTestConfig()
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")
	mailer := newCaptureMailer()
	sink := &captureSink{}

	request := auth.NewRequestPasswordResetHandler(repo, cfg).
		WithMailer(mailer).
		WithActivitySink(sink).
		WithLogger(&testLogger{})

	require.NoError(t, request.Execute(ctx, auth.RequestPasswordResetMessage{Email: "nobody@example.com"}),
		"unknown emails are not disclosed")
	assert.Empty(t, mailer.resetToken("nobody@example.com"))

	err := request.Execute(ctx, auth.RequestPasswordResetMessage{Email: "not-an-email"})
	assert.True(t, auth.IsCategory(err, auth.CategoryValidation))

	require.NoError(t, request.Execute(ctx, auth.RequestPasswordResetMessage{Email: "Alice@example.com"}))
	token := mailer.resetToken("alice@example.com")
	require.NotEmpty(t, token)

	confirm := auth.NewConfirmPasswordResetHandler(repo, cfg).WithActivitySink(sink)

	err = confirm.Execute(ctx, auth.ConfirmPasswordResetMessage{Token: token, NewPassword: "short"})
	assert.True(t, auth.IsCategory(err, auth.CategoryValidation))

	require.NoError(t, confirm.Execute(ctx, auth.ConfirmPasswordResetMessage{Token: token, NewPassword: "N3wSecret!"}),
		"a rejected password does not burn the link")

	err = confirm.Execute(ctx, auth.ConfirmPasswordResetMessage{Token: token, NewPassword: "Oth3rSecret!"})
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid)

	provider := auth.NewUserProvider(repo.Users())
	_, err = provider.VerifyIdentity(ctx, "alice@example.com", "Sup3rSecret!")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = provider.VerifyIdentity(ctx, "alice@example.com", "N3wSecret!")
	assert.NoError(t, err)

	stored, err := repo.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventPasswordResetRequest,
		auth.ActivityEventPasswordResetSuccess,
	}, sink.types())
}
