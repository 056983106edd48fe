package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
	"github.com/promptlift/go-auth/revocation"
)

var (
	_ auth.TokenDenylist = (*revocation.Redis)(nil)
	_ auth.TokenDenylist = (*revocation.Memory)(nil)
)

func newRedis(t *testing.T) (*revocation.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return revocation.NewRedis(client), mr
}

func TestRedis_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedis(t)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))

	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(revocation.DefaultKeyPrefix + "jti-1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %s", ttl)

	mr.FastForward(2 * time.Minute)

	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedis_ExpiredTokenIsNotStored(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedis(t)

	require.NoError(t, store.Revoke(ctx, "old", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(revocation.DefaultKeyPrefix+"old"))
}

func TestRedis_EmptyTokenID(t *testing.T) {
	store, _ := newRedis(t)
	assert.ErrorIs(t, store.Revoke(context.Background(), "", time.Now().Add(time.Minute)), revocation.ErrEmptyTokenID)
}

func TestRedis_UnavailableServer(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedis(t)
	mr.Close()

	_, err := store.IsRevoked(ctx, "jti")
	assert.Error(t, err)
}

func TestRedis_CustomPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedis(t)
	store.WithPrefix("test:")

	require.NoError(t, store.Revoke(ctx, "abc", time.Now().Add(time.Minute)))
	assert.True(t, mr.Exists("test:abc"))
}

func TestMemory_RevokeAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := revocation.NewMemory().WithClock(func() time.Time { return now })

	require.NoError(t, store.Revoke(ctx, "a", now.Add(time.Minute)))
	require.NoError(t, store.Revoke(ctx, "b", now.Add(-time.Minute)))

	revoked, err := store.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 1, store.Len())

	now = now.Add(time.Minute)

	revoked, err = store.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 0, store.Len())
}
