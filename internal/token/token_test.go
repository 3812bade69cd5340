package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/callvault/callvault/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_URLSafe(t *testing.T) {
	tok, err := token.New()
	require.NoError(t, err)

	// 24 bytes base64url-encode to 32 characters with no padding.
	assert.Len(t, tok, 32)
	assert.False(t, strings.ContainsAny(tok, "+/="))
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := token.New()
		require.NoError(t, err)
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestIsExpired(t *testing.T) {
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Minute)

	assert.True(t, token.IsExpired(&past))
	assert.False(t, token.IsExpired(&future))
	assert.False(t, token.IsExpired(nil))
}

func TestExpiresAt_RoughlyTTLFromNow(t *testing.T) {
	exp := token.ExpiresAt(7 * 24 * time.Hour)
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), exp, 5*time.Second)
}
