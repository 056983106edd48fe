package totp

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rfcSecret = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))

func TestCodeMatchesRFC6238Vectors(t *testing.T) {
	// six digit truncation of the SHA1 vectors from RFC 6238 appendix B
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tc := range cases {
		code, err := Code(rfcSecret, time.Unix(tc.ts, 0))
		require.NoError(t, err)
		assert.Equal(t, tc.code, code, "t=%d", tc.ts)
	}
}

func TestCodeNormalizesSecret(t *testing.T) {
	code, err := Code(strings.ToLower(rfcSecret), time.Unix(1234567890, 0))
	require.NoError(t, err)
	assert.Equal(t, "005924", code)

	spaced := rfcSecret[:8] + " " + rfcSecret[8:]
	code, err = Code(spaced, time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "287082", code)
}

func TestValidate(t *testing.T) {
	now := time.Unix(1111111109, 0)
	current, err := Code(rfcSecret, now)
	require.NoError(t, err)
	previous, err := Code(rfcSecret, now.Add(-Period))
	require.NoError(t, err)
	next, err := Code(rfcSecret, now.Add(Period))
	require.NoError(t, err)
	stale, err := Code(rfcSecret, now.Add(-2*Period))
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		want bool
	}{
		{"current step", current, true},
		{"previous step", previous, true},
		{"next step", next, true},
		{"two steps old", stale, false},
		{"wrong length", "12345", false},
		{"non numeric", "abcdef", false},
		{"empty", "", false},
		{"surrounding spaces", " " + current + " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Validate(rfcSecret, tt.code, now, DefaultSkew)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestValidateZeroSkew(t *testing.T) {
	now := time.Unix(1111111109, 0)
	previous, err := Code(rfcSecret, now.Add(-Period))
	require.NoError(t, err)

	ok, err := Validate(rfcSecret, previous, now, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateInvalidSecret(t *testing.T) {
	_, err := Validate("not base32!!", "123456", time.Now(), DefaultSkew)
	assert.ErrorIs(t, err, ErrInvalidSecret)

	_, err = Code("  ", time.Now())
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestGenerate(t *testing.T) {
	a, err := Generate("PromptLift", "alice@example.com")
	require.NoError(t, err)
	b, err := Generate("PromptLift", "alice@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a.Secret, b.Secret)
	assert.Len(t, a.Secret, 32)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(a.Secret)
	require.NoError(t, err)
	assert.Len(t, raw, SecretBytes)

	u, err := url.Parse(a.URI)
	require.NoError(t, err)

	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, "/PromptLift:alice@example.com", u.Path)

	q := u.Query()
	assert.Equal(t, a.Secret, q.Get("secret"))
	assert.Equal(t, "PromptLift", q.Get("issuer"))
	assert.Equal(t, "SHA1", q.Get("algorithm"))
	assert.Equal(t, "6", q.Get("digits"))
	assert.Equal(t, "30", q.Get("period"))

	code, err := Code(a.Secret, time.Now())
	require.NoError(t, err)
	ok, err := Validate(a.Secret, code, time.Now(), DefaultSkew)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateRequiresLabels(t *testing.T) {
	_, err := Generate("", "alice@example.com")
	assert.Error(t, err)

	_, err = Generate("PromptLift", "")
	assert.Error(t, err)
}
