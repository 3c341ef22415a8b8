package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/phrazzld/duffel/internal/api/middleware"
	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/platform/logger"
	"github.com/phrazzld/duffel/internal/store"
)

// DocHandler serves document CRUD against the request's factory
// snapshot.
type DocHandler struct {
	logger *slog.Logger
}

// NewDocHandler creates a new DocHandler.
func NewDocHandler(log *slog.Logger) *DocHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DocHandler{logger: log.With(slog.String("component", "doc_handler"))}
}

// Post handles POST /{db}: a new document under a generated UUID id,
// unless the body carries an _id of its own.
func (h *DocHandler) Post(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "db")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	write, err := parseDocWrite(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id := write.id
	if id == "" {
		id = uuid.NewString()
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	rev, err := db.Put(r.Context(), &store.Document{ID: id, Body: write.body}, write.rev)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	h.logWrite(r, "Document created", name, id, rev)
	w.Header().Set("ETag", strconv.Quote(rev))
	shared.RespondWithJSON(w, r, http.StatusCreated, okResponse{OK: true, ID: id, Rev: rev})
}

// Put handles PUT /{db}/{docid}: create or update, with the expected
// revision taken from the body's _rev or the rev query parameter.
func (h *DocHandler) Put(w http.ResponseWriter, r *http.Request) {
	name, docID, ok := h.params(w, r)
	if !ok {
		return
	}
	write, err := parseDocWrite(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if write.id != "" && write.id != docID {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request",
			"The _id field does not match the document URI.")
		return
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	rev, err := db.Put(r.Context(), &store.Document{ID: docID, Body: write.body}, write.rev)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	h.logWrite(r, "Document updated", name, docID, rev)
	w.Header().Set("ETag", strconv.Quote(rev))
	shared.RespondWithJSON(w, r, http.StatusCreated, okResponse{OK: true, ID: docID, Rev: rev})
}

// Get handles GET /{db}/{docid}, answering the stored body with _id
// and _rev injected. Tombstones read as 404.
func (h *DocHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, docID, ok := h.params(w, r)
	if !ok {
		return
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	doc, err := db.Get(r.Context(), docID)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	body, err := injectMeta(doc)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(doc.Rev))
	shared.RespondWithJSON(w, r, http.StatusOK, body)
}

// Delete handles DELETE /{db}/{docid}?rev=..., writing a tombstone.
func (h *DocHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, docID, ok := h.params(w, r)
	if !ok {
		return
	}

	db, err := middleware.FactoryFrom(r.Context()).Open(r.Context(), name)
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	rev, err := db.Delete(r.Context(), docID, r.URL.Query().Get("rev"))
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}

	h.logWrite(r, "Document deleted", name, docID, rev)
	shared.RespondWithJSON(w, r, http.StatusOK, okResponse{OK: true, ID: docID, Rev: rev})
}

func (h *DocHandler) params(w http.ResponseWriter, r *http.Request) (db, docID string, ok bool) {
	db, err := pathParam(r, "db")
	if err == nil {
		docID, err = pathParam(r, "docid")
	}
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return "", "", false
	}
	return db, docID, true
}

func (h *DocHandler) logWrite(r *http.Request, msg, db, id, rev string) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	log.Debug(msg, "db", db, "id", id, "rev", rev)
}
