package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, write(&buf, rand.Reader))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(names))

	seen := map[string]bool{}
	for i, line := range lines {
		name, value, ok := strings.Cut(line, "=")
		require.True(t, ok)
		assert.Equal(t, names[i], name)

		raw, err := hex.DecodeString(value)
		require.NoError(t, err)
		assert.Len(t, raw, secretBytes)
		assert.False(t, seen[value])
		seen[value] = true
	}
}

func TestWriteShortRandom(t *testing.T) {
	var buf bytes.Buffer
	err := write(&buf, bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}
