package gateway

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/phrazzld/duffel/internal/config"
)

// Authorization failures, distinguished so the HTTP layer can phrase
// the 401 body.
var (
	ErrNoCredentials  = errors.New("authentication required")
	ErrBadCredentials = errors.New("name or password is incorrect")
)

// AccessGate makes the per-request authorization decision from the
// static admin credential. With no credential configured every request
// passes; with one configured, safe methods still pass and everything
// else must present matching Basic auth. The decision is pure and
// per-request; no session state exists.
type AccessGate struct {
	username string
	password string
}

// NewAccessGate returns a gate for the startup credential. The
// password may be plain text or a CouchDB-style -pbkdf2- hash.
func NewAccessGate(cred config.AuthConfig) *AccessGate {
	return &AccessGate{username: cred.Username, password: cred.Password}
}

// Enabled reports whether a credential is configured at all.
func (g *AccessGate) Enabled() bool {
	return g.username != "" && g.password != ""
}

// Authorize returns nil when the request may proceed, or one of the
// authorization errors for a guarded request without a matching
// credential.
func (g *AccessGate) Authorize(r *http.Request) error {
	if !g.Enabled() {
		return nil
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ErrNoCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(g.username)) == 1
	passOK := VerifyPassword(g.password, pass)
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}
