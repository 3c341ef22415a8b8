package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/duffel/internal/api/shared"
)

// PolicySource yields the CORS policy snapshot a request runs under.
type PolicySource interface {
	Policy() *CORSPolicy
}

// Pipeline is the fixed-order request path: the authorization decision
// is made first, CORS headers are applied second, and only then does
// the request reach the engine. A 401 therefore still carries the CORS
// headers a browser needs to surface the failure, and an allowed
// preflight never touches the engine.
type Pipeline struct {
	gate     *AccessGate
	policies PolicySource
	next     http.Handler
}

// NewPipeline assembles the request path around the engine handler.
func NewPipeline(gate *AccessGate, policies PolicySource, next http.Handler) *Pipeline {
	return &Pipeline{gate: gate, policies: policies, next: next}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	policy := p.policies.Policy()
	authErr := p.gate.Authorize(r)

	preflight := false
	if policy != nil {
		// The response depends on the Origin header either way.
		w.Header().Add("Vary", "Origin")

		if origin := r.Header.Get("Origin"); origin != "" && policy.AllowsOrigin(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", policy.AllowOriginValue(origin))
			if policy.Credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", strings.Join(policy.Methods, ", "))
				h.Set("Access-Control-Allow-Headers", strings.Join(policy.Headers, ", "))
				preflight = true
			}
		}
	}

	if authErr != nil {
		reason := "Name or password is incorrect."
		if errors.Is(authErr, ErrNoCredentials) {
			reason = "Authentication required."
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="duffel"`)
		shared.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized", reason)
		return
	}

	if preflight {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	p.next.ServeHTTP(w, r)
}
