package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/promptlift/go-auth"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
		{
			name:     "Too long",
			password: strings.Repeat("a", 73),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := auth.HashPassword(tt.password)

			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, auth.IsCategory(err, auth.CategoryValidation))
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, auth.ComparePasswordAndHash(tt.password, hash))
		})
	}
}

func TestComparePasswordAndHash(t *testing.T) {
	password := "testPassword123!"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	t.Run("match", func(t *testing.T) {
		assert.NoError(t, auth.ComparePasswordAndHash(password, hash))
	})

	t.Run("mismatch", func(t *testing.T) {
		err := auth.ComparePasswordAndHash("wrongPassword", hash)
		assert.True(t, errors.Is(err, auth.ErrMismatchedHashAndPassword))
	})

	t.Run("malformed hash", func(t *testing.T) {
		err := auth.ComparePasswordAndHash(password, "not-a-hash")
		require.Error(t, err)
		assert.False(t, errors.Is(err, auth.ErrMismatchedHashAndPassword))
	})
}

func TestBcryptHasher(t *testing.T) {
	hasher := auth.NewBcryptHasher(4)

	first, err := hasher.Hash("Sup3rSecret!")
	require.NoError(t, err)
	second, err := hasher.Hash("Sup3rSecret!")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each hash is salted")
	assert.True(t, hasher.Verify("Sup3rSecret!", first))
	assert.True(t, hasher.Verify("Sup3rSecret!", second))
	assert.False(t, hasher.Verify("sup3rsecret!", first))
	assert.False(t, hasher.Verify("Sup3rSecret!", "garbage"))
}

func TestBcryptHasherRejectsBadCost(t *testing.T) {
	_, err := auth.NewBcryptHasher(99).Hash("password")
	assert.True(t, auth.IsCategory(err, auth.CategoryValidation))
}

func TestDummyHash(t *testing.T) {
	hash := auth.DummyHash()
	assert.NotEmpty(t, hash)
	assert.Equal(t, hash, auth.DummyHash())
	assert.False(t, auth.NewBcryptHasher(0).Verify("anything", hash))
}
