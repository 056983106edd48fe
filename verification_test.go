package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
)

func TestVerificationManagerIssueConsume(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")
	manager := auth.NewVerificationManager(repo)

	token, err := manager.Issue(ctx, user.ID, auth.PurposeEmailVerify, time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, 43)

	_, err = manager.Consume(ctx, token, auth.PurposePasswordReset)
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid, "purpose mismatch")

	userID, err := manager.Consume(ctx, token, auth.PurposeEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, err = manager.Consume(ctx, token, auth.PurposeEmailVerify)
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid, "second use")

	_, err = manager.Consume(ctx, "", auth.PurposeEmailVerify)
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid)
}

func TestVerificationManagerExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")

	now := time.Now().UTC().Truncate(time.Second)
	manager := auth.NewVerificationManager(repo).WithClock(func() time.Time { return now })

	token, err := manager.Issue(ctx, user.ID, auth.PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = manager.Consume(ctx, token, auth.PurposePasswordReset)
	assert.ErrorIs(t, err, auth.ErrVerificationTokenExpired)
	assert.Equal(t, 400, auth.HTTPStatus(err))

	now = now.Add(-time.Hour)
	_, err = manager.Consume(ctx, token, auth.PurposePasswordReset)
	assert.ErrorIs(t, err, auth.ErrVerificationTokenInvalid, "expired tokens are removed on use")
}

func TestVerificationManagerIssueValidation(t *testing.T) {
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")
	manager := auth.NewVerificationManager(repo)

	_, err := manager.Issue(context.Background(), user.ID, auth.VerificationPurpose("login"), time.Hour)
	assert.True(t, auth.IsCategory(err, auth.CategoryValidation))

	_, err = manager.Issue(context.Background(), user.ID, auth.PurposeEmailVerify, 0)
	assert.True(t, auth.IsCategory(err, auth.CategoryValidation))
}

func TestVerificationManagerConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := createUser(t, repo, "alice@example.com", "Sup3rSecret!")
	manager := auth.NewVerificationManager(repo)

	token, err := manager.Issue(ctx, user.ID, auth.PurposePasswordReset, time.Hour)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Consume(ctx, token, auth.PurposePasswordReset); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
