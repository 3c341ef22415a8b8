package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/duffel/internal/redact"
	"github.com/phrazzld/duffel/internal/store"
)

// ErrorBody is the wire shape of every error response: a short
// machine-readable code plus a human-readable reason. Clients written
// against CouchDB parse this exact pair.
type ErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// RespondWithJSON writes data as a JSON response with the given status
// code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()))
	}
}

// RespondWithError writes a JSON error body with the given status,
// error code and reason.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, code, reason string) {
	slog.Debug("Sending error response",
		"status", status,
		"error", code,
		"path", r.URL.Path,
		"method", r.Method,
		"trace_id", GetTraceID(r.Context()))
	RespondWithJSON(w, r, status, ErrorBody{Error: code, Reason: reason})
}

// RespondWithStoreError maps the storage sentinel errors onto their
// HTTP shapes. Anything unrecognized becomes a 500 whose detail is
// logged but never sent to the client.
func RespondWithStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrDatabaseNotFound):
		RespondWithError(w, r, http.StatusNotFound, "not_found", "Database does not exist.")
	case errors.Is(err, store.ErrNotFound):
		RespondWithError(w, r, http.StatusNotFound, "not_found", "missing")
	case errors.Is(err, store.ErrDatabaseExists):
		RespondWithError(w, r, http.StatusPreconditionFailed, "file_exists",
			"The database could not be created, the file already exists.")
	case errors.Is(err, store.ErrConflict):
		RespondWithError(w, r, http.StatusConflict, "conflict", "Document update conflict.")
	default:
		slog.Error("Storage operation failed",
			"error", redact.Error(err),
			"path", r.URL.Path,
			"method", r.Method,
			"trace_id", GetTraceID(r.Context()))
		RespondWithError(w, r, http.StatusInternalServerError,
			"internal_server_error", "Something went wrong. Check the server log.")
	}
}
