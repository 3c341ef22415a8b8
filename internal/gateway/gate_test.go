package gateway_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/config"
	"github.com/phrazzld/duffel/internal/gateway"
)

func authedRequest(method, user, pass string) *http.Request {
	r := httptest.NewRequest(method, "/db", nil)
	r.SetBasicAuth(user, pass)
	return r
}

func TestGateOpenWithoutCredential(t *testing.T) {
	t.Parallel()

	gate := gateway.NewAccessGate(config.AuthConfig{})

	assert.False(t, gate.Enabled())
	assert.NoError(t, gate.Authorize(httptest.NewRequest(http.MethodPut, "/db", nil)))
	assert.NoError(t, gate.Authorize(httptest.NewRequest(http.MethodDelete, "/db", nil)))
}

func TestGateSafeMethodsAlwaysPass(t *testing.T) {
	t.Parallel()

	gate := gateway.NewAccessGate(config.AuthConfig{Username: "admin", Password: "pw"})
	require.True(t, gate.Enabled())

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		assert.NoError(t, gate.Authorize(httptest.NewRequest(method, "/db", nil)), method)
	}
}

func TestGateGuardsMutations(t *testing.T) {
	t.Parallel()

	gate := gateway.NewAccessGate(config.AuthConfig{Username: "admin", Password: "pw"})

	for _, method := range []string{http.MethodPut, http.MethodPost, http.MethodDelete} {
		err := gate.Authorize(httptest.NewRequest(method, "/db", nil))
		assert.ErrorIs(t, err, gateway.ErrNoCredentials, method)
	}
}

func TestGateAcceptsMatchingCredential(t *testing.T) {
	t.Parallel()

	gate := gateway.NewAccessGate(config.AuthConfig{Username: "admin", Password: "hunter2"})

	assert.NoError(t, gate.Authorize(authedRequest(http.MethodPut, "admin", "hunter2")))
}

func TestGateRejectsMismatches(t *testing.T) {
	t.Parallel()

	gate := gateway.NewAccessGate(config.AuthConfig{Username: "admin", Password: "hunter2"})

	testCases := []struct {
		name string
		user string
		pass string
	}{
		{name: "wrong password", user: "admin", pass: "hunter3"},
		{name: "wrong user", user: "root", pass: "hunter2"},
		{name: "both wrong", user: "root", pass: "toor"},
		{name: "empty password", user: "admin", pass: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := gate.Authorize(authedRequest(http.MethodDelete, tc.user, tc.pass))
			assert.ErrorIs(t, err, gateway.ErrBadCredentials)
		})
	}
}

func TestGateVerifiesHashedCredential(t *testing.T) {
	t.Parallel()

	hash, err := gateway.HashPassword("tops3cret", 10)
	require.NoError(t, err)
	gate := gateway.NewAccessGate(config.AuthConfig{Username: "admin", Password: hash})

	assert.NoError(t, gate.Authorize(authedRequest(http.MethodPut, "admin", "tops3cret")))
	assert.ErrorIs(t,
		gate.Authorize(authedRequest(http.MethodPut, "admin", hash)),
		gateway.ErrBadCredentials,
		"the stored hash itself must not work as a password")
}
