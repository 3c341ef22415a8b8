package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/gateway"
)

func TestHashPasswordFromArgument(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--iterations", "10", "s3cret"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(hash, "-pbkdf2-"), hash)
	assert.True(t, gateway.VerifyPassword(hash, "s3cret"))
	assert.False(t, gateway.VerifyPassword(hash, "wrong"))
}

func TestHashPasswordFromStdin(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("from-stdin\n"))
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, gateway.VerifyPassword(hash, "from-stdin"))
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	t.Parallel()

	run := func() string {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"same"})
		require.NoError(t, cmd.Execute())
		return strings.TrimSpace(out.String())
	}

	first, second := run(), run()
	assert.NotEqual(t, first, second)
	assert.True(t, gateway.VerifyPassword(first, "same"))
	assert.True(t, gateway.VerifyPassword(second, "same"))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}
