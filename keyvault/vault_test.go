package keyvault_test

import (
	"strings"
	"testing"

	"github.com/promptlift/go-auth/keyvault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestVaultRoundTrip(t *testing.T) {
	v, err := keyvault.NewFromHex(testKey)
	require.NoError(t, err)

	sealed, err := v.Seal([]byte("AIzaSy-provider-key"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "AIzaSy")

	again, err := v.Seal([]byte("AIzaSy-provider-key"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSy-provider-key", string(plain))
}

func TestVaultRejectsTampering(t *testing.T) {
	v, err := keyvault.NewFromHex(testKey)
	require.NoError(t, err)

	sealed, err := v.Seal([]byte("secret"))
	require.NoError(t, err)

	mid := len(sealed) / 2
	flipped := "A"
	if sealed[mid] == 'A' {
		flipped = "B"
	}

	tests := []struct {
		name  string
		input string
	}{
		{"flipped byte", sealed[:mid] + flipped + sealed[mid+1:]},
		{"truncated", sealed[:10]},
		{"not base64", "!!!"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Open(tt.input)
			assert.ErrorIs(t, err, keyvault.ErrInvalidCiphertext)
		})
	}
}

func TestVaultWrongKey(t *testing.T) {
	a, err := keyvault.NewFromHex(testKey)
	require.NoError(t, err)
	b, err := keyvault.NewFromHex(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, keyvault.ErrInvalidCiphertext)
}

func TestNewFromHexValidation(t *testing.T) {
	_, err := keyvault.NewFromHex("abcd")
	assert.ErrorIs(t, err, keyvault.ErrInvalidKey)

	_, err = keyvault.NewFromHex(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, keyvault.ErrInvalidKey)
}
