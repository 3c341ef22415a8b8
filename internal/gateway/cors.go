package gateway

import (
	"strings"
	"sync/atomic"

	"github.com/phrazzld/duffel/internal/config"
)

// CORSPolicy is an immutable cross-origin policy. A nil *CORSPolicy
// means CORS is disabled entirely.
type CORSPolicy struct {
	Methods     []string
	Headers     []string
	Credentials bool

	// Origins is the explicit allow-list; AnyOrigin set means the
	// wildcard "*" was configured instead. Wildcard and explicit lists
	// have different request-time semantics when credentials are on.
	Origins   []string
	AnyOrigin bool
}

// AllowsOrigin reports whether the policy permits the given origin.
func (p *CORSPolicy) AllowsOrigin(origin string) bool {
	if p.AnyOrigin {
		return true
	}
	for _, o := range p.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

// AllowOriginValue returns the Access-Control-Allow-Origin value for a
// permitted origin: the literal "*" for a credential-less wildcard,
// otherwise the origin itself. Browsers reject "*" on credentialed
// requests, so a credentialed wildcard reflects the request origin.
func (p *CORSPolicy) AllowOriginValue(origin string) string {
	if p.AnyOrigin && !p.Credentials {
		return "*"
	}
	return origin
}

// corsKeys are the configuration keys a CORS policy is derived from.
var corsKeys = []string{
	"httpd.enable_cors",
	"cors.credentials",
	"cors.methods",
	"cors.origins",
	"cors.headers",
}

// CORSBuilder owns the current CORSPolicy and rebuilds it from the
// store whenever one of its keys changes.
type CORSBuilder struct {
	store  *config.Store
	policy atomic.Pointer[CORSPolicy]
}

// NewCORSBuilder registers the CORS defaults and returns a builder.
// The policy is nil until the first Rebuild.
func NewCORSBuilder(store *config.Store) *CORSBuilder {
	store.RegisterDefault("httpd", "enable_cors", false)
	store.RegisterDefault("cors", "credentials", false)
	store.RegisterDefault("cors", "methods", "GET, PUT, POST, HEAD, DELETE")
	store.RegisterDefault("cors", "headers", "accept, authorization, content-type, origin, referer")
	store.RegisterDefault("cors", "origins", "*")
	return &CORSBuilder{store: store}
}

// Keys returns the configuration keys the builder reacts to.
func (b *CORSBuilder) Keys() []string {
	return corsKeys
}

// Policy returns the current policy snapshot, nil when CORS is
// disabled. Callers use one snapshot for the whole request.
func (b *CORSBuilder) Policy() *CORSPolicy {
	return b.policy.Load()
}

// Rebuild recomputes the policy from the store and publishes it
// atomically.
func (b *CORSBuilder) Rebuild() error {
	if !b.store.GetBool("httpd", "enable_cors") {
		b.policy.Store(nil)
		return nil
	}

	p := &CORSPolicy{
		Methods:     splitList(b.store.GetString("cors", "methods")),
		Headers:     splitList(b.store.GetString("cors", "headers")),
		Credentials: b.store.GetBool("cors", "credentials"),
	}
	if origins := b.store.GetString("cors", "origins"); origins == "*" {
		p.AnyOrigin = true
	} else {
		p.Origins = splitList(origins)
	}

	b.policy.Store(p)
	return nil
}

// splitList parses the comma-separated list values used throughout the
// cors section, trimming whitespace and dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
