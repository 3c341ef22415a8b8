package gateway_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/gateway"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := gateway.HashPassword("tops3cret", 10)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "-pbkdf2-"))
	assert.True(t, gateway.VerifyPassword(hash, "tops3cret"))
	assert.False(t, gateway.VerifyPassword(hash, "tops3cret "))
	assert.False(t, gateway.VerifyPassword(hash, ""))
}

func TestHashFormat(t *testing.T) {
	t.Parallel()

	hash, err := gateway.HashPassword("pw", 7)
	require.NoError(t, err)

	parts := strings.Split(strings.TrimPrefix(hash, "-pbkdf2-"), ",")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 40, "20-byte derived key in hex")
	assert.Len(t, parts[1], 32, "16-byte salt in hex")
	assert.Equal(t, "7", parts[2])
}

func TestHashPasswordRejectsBadIterations(t *testing.T) {
	t.Parallel()

	_, err := gateway.HashPassword("pw", 0)
	assert.Error(t, err)
}

// The RFC 6070 PBKDF2-HMAC-SHA1 vectors pin the derivation itself:
// P="password", S="salt".
func TestVerifyKnownVectors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		configured string
	}{
		{
			name:       "one iteration",
			configured: "-pbkdf2-0c60c80f961f0e71f3a9b524af6012062fe037a6,73616c74,1",
		},
		{
			name:       "two iterations",
			configured: "-pbkdf2-ea6c014dc72d6f8ccd1ed92ace1d41f0d8de8957,73616c74,2",
		},
		{
			name:       "4096 iterations",
			configured: "-pbkdf2-4b007901b765489abead49d926f721d065a429c1,73616c74,4096",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, gateway.VerifyPassword(tc.configured, "password"))
			assert.False(t, gateway.VerifyPassword(tc.configured, "Password"))
		})
	}
}

func TestVerifyPlainText(t *testing.T) {
	t.Parallel()

	assert.True(t, gateway.VerifyPassword("hunter2", "hunter2"))
	assert.False(t, gateway.VerifyPassword("hunter2", "hunter"))
	assert.False(t, gateway.VerifyPassword("hunter2", "hunter22"))
}

func TestVerifyMalformedHashNeverMatches(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		configured string
	}{
		{name: "missing fields", configured: "-pbkdf2-deadbeef"},
		{name: "two fields only", configured: "-pbkdf2-deadbeef,73616c74"},
		{name: "key not hex", configured: "-pbkdf2-zzzz,73616c74,10"},
		{name: "empty key", configured: "-pbkdf2-,73616c74,10"},
		{name: "salt not hex", configured: "-pbkdf2-deadbeef,saltsalt,10"},
		{name: "iterations not a number", configured: "-pbkdf2-deadbeef,73616c74,many"},
		{name: "zero iterations", configured: "-pbkdf2-deadbeef,73616c74,0"},
		{name: "negative iterations", configured: "-pbkdf2-deadbeef,73616c74,-3"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.False(t, gateway.VerifyPassword(tc.configured, "password"))
			assert.False(t, gateway.VerifyPassword(tc.configured, ""))
		})
	}
}
