package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/duffel/internal/api/middleware"
	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/platform/logger"
	"github.com/phrazzld/duffel/internal/store"
)

// nameRule spells out the database naming constraint for clients.
const nameRule = "Only lowercase characters (a-z), digits (0-9), and any of " +
	"the characters _, $, (, ), +, -, and / are allowed. Must begin with a letter."

// DBHandler serves database-level operations against the request's
// factory snapshot.
type DBHandler struct {
	logger *slog.Logger
}

// NewDBHandler creates a new DBHandler.
func NewDBHandler(log *slog.Logger) *DBHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DBHandler{logger: log.With(slog.String("component", "db_handler"))}
}

// Create handles PUT /{db}.
func (h *DBHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "db")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if !store.ValidName(name) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "illegal_database_name",
			fmt.Sprintf("Name: '%s'. %s", name, nameRule))
		return
	}

	if err := middleware.FactoryFrom(r.Context()).Create(r.Context(), name); err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Info("Database created", "db", name)
	shared.RespondWithJSON(w, r, http.StatusCreated, okResponse{OK: true})
}

// Info handles GET /{db}.
func (h *DBHandler) Info(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "db")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	info, err := db.Info(r.Context())
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, info)
}

// Drop handles DELETE /{db}.
func (h *DBHandler) Drop(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "db")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if err := middleware.FactoryFrom(r.Context()).Delete(r.Context(), name); err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Info("Database deleted", "db", name)
	shared.RespondWithJSON(w, r, http.StatusOK, okResponse{OK: true})
}

// AllDocs handles GET /{db}/_all_docs, sorted by id with tombstones
// excluded. include_docs=true inlines each document body.
func (h *DBHandler) AllDocs(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "db")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	docs, err := db.AllDocs(r.Context())
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	includeDocs := r.URL.Query().Get("include_docs") == "true"
	rows := make([]allDocsRow, 0, len(docs))
	for _, doc := range docs {
		row := allDocsRow{ID: doc.ID, Key: doc.ID, Value: rowValue{Rev: doc.Rev}}
		if includeDocs {
			body, err := injectMeta(doc)
			if err != nil {
				shared.RespondWithStoreError(w, r, err)
				return
			}
			row.Doc = body
		}
		rows = append(rows, row)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, allDocsResponse{TotalRows: len(rows), Rows: rows})
}
