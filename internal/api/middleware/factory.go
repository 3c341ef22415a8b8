// Package middleware provides the http.Handler middleware for the
// engine router: request tracing/logging and factory snapshot binding.
package middleware

import (
	"context"
	"net/http"

	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/store"
)

// Source yields the current database factory. The backend selector
// implements it.
type Source interface {
	Factory() *store.Factory
}

type factoryKey struct{}

// WithFactory binds one factory snapshot into the request context at
// engine entry. Every handler in the request then works against that
// snapshot, even if the live factory is swapped mid-request.
func WithFactory(source Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			factory := source.Factory()
			if factory == nil {
				shared.RespondWithError(w, r, http.StatusInternalServerError,
					"internal_server_error", "No storage backend is configured.")
				return
			}
			ctx := context.WithValue(r.Context(), factoryKey{}, factory)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FactoryFrom returns the factory snapshot bound to the request, or
// nil outside the engine path.
func FactoryFrom(ctx context.Context) *store.Factory {
	f, _ := ctx.Value(factoryKey{}).(*store.Factory)
	return f
}
