package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apimw "github.com/phrazzld/duffel/internal/api/middleware"
	"github.com/phrazzld/duffel/internal/config"
)

// RouterConfig carries the engine router's dependencies.
type RouterConfig struct {
	// Factories yields the live factory; one snapshot is bound per
	// request.
	Factories apimw.Source

	// Config is the runtime configuration store behind /_config.
	Config *config.Store

	// Logger is the base logger for request logging and handlers.
	Logger *slog.Logger
}

// NewRouter assembles the engine router: standard middleware, server
// endpoints, the runtime config API, and database/document CRUD.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimw.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(apimw.WithFactory(cfg.Factories))

	server := NewServerHandler(cfg.Logger)
	configHandler := NewConfigHandler(cfg.Config, cfg.Logger)
	dbs := NewDBHandler(cfg.Logger)
	docs := NewDocHandler(cfg.Logger)

	r.Get("/", server.Welcome)
	r.Get("/_all_dbs", server.AllDBs)
	r.Get("/_uuids", server.UUIDs)

	r.Route("/_config", func(r chi.Router) {
		r.Get("/", configHandler.GetAll)
		r.Get("/{section}", configHandler.GetSection)
		r.Get("/{section}/{key}", configHandler.GetValue)
		r.Put("/{section}/{key}", configHandler.PutValue)
		r.Delete("/{section}/{key}", configHandler.DeleteValue)
	})

	r.Route("/{db}", func(r chi.Router) {
		r.Put("/", dbs.Create)
		r.Get("/", dbs.Info)
		r.Delete("/", dbs.Drop)
		r.Post("/", docs.Post)
		r.Get("/_all_docs", dbs.AllDocs)
		r.Get("/{docid}", docs.Get)
		r.Put("/{docid}", docs.Put)
		r.Delete("/{docid}", docs.Delete)
	})

	return r
}
