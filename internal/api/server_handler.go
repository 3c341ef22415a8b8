package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/phrazzld/duffel/internal/api/middleware"
	"github.com/phrazzld/duffel/internal/api/shared"
)

// Version is reported by the welcome endpoint.
const Version = "0.1.0"

// uuidsMax caps a single _uuids request.
const uuidsMax = 1000

// ServerHandler serves the server-level endpoints: the welcome banner,
// the database listing, and the UUID well.
type ServerHandler struct {
	logger *slog.Logger
}

// NewServerHandler creates a new ServerHandler.
func NewServerHandler(log *slog.Logger) *ServerHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ServerHandler{logger: log.With(slog.String("component", "server_handler"))}
}

// Welcome handles GET /.
func (h *ServerHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, welcomeResponse{
		Duffel:  "Welcome",
		Version: Version,
		Vendor:  vendor{Name: "duffel"},
	})
}

// AllDBs handles GET /_all_dbs with the database names sorted
// ascending.
func (h *ServerHandler) AllDBs(w http.ResponseWriter, r *http.Request) {
	names, err := middleware.FactoryFrom(r.Context()).List(r.Context())
	if err != nil {
		shared.RespondWithStoreError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, names)
}

// UUIDs handles GET /_uuids?count=n.
func (h *ServerHandler) UUIDs(w http.ResponseWriter, r *http.Request) {
	count := 1
	if q := r.URL.Query().Get("count"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"bad_request", "count must be a non-negative integer")
			return
		}
		count = n
	}
	if count > uuidsMax {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"bad_request", "count must not exceed 1000")
		return
	}

	ids := make([]string, count)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	shared.RespondWithJSON(w, r, http.StatusOK, uuidsResponse{UUIDs: ids})
}
