package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/config"
	"github.com/phrazzld/duffel/internal/platform/logger"
)

// ConfigHandler serves the runtime configuration API. Writing through
// it triggers the bound rebuilds synchronously, so a change is live by
// the time the response goes out. Reads are open; mutations only reach
// this handler after passing the access gate.
type ConfigHandler struct {
	store  *config.Store
	logger *slog.Logger
}

// NewConfigHandler creates a new ConfigHandler on the runtime store.
func NewConfigHandler(store *config.Store, log *slog.Logger) *ConfigHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConfigHandler{
		store:  store,
		logger: log.With(slog.String("component", "config_handler")),
	}
}

// GetAll handles GET /_config.
func (h *ConfigHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.store.All())
}

// GetSection handles GET /_config/{section}. Unknown sections read as
// empty objects.
func (h *ConfigHandler) GetSection(w http.ResponseWriter, r *http.Request) {
	section, err := pathParam(r, "section")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.store.Section(section))
}

// GetValue handles GET /_config/{section}/{key}.
func (h *ConfigHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	section, key, ok := h.params(w, r)
	if !ok {
		return
	}
	value, found := h.store.Get(section, key)
	if !found {
		shared.RespondWithError(w, r, http.StatusNotFound, "not_found", "unknown_config_value")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, value)
}

// PutValue handles PUT /_config/{section}/{key}: the body is the new
// value, the response is the previous one.
func (h *ConfigHandler) PutValue(w http.ResponseWriter, r *http.Request) {
	section, key, ok := h.params(w, r)
	if !ok {
		return
	}
	var value any
	if err := shared.DecodeJSON(r, &value); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", "invalid_json")
		return
	}

	prev, err := h.store.Set(section, key, value)
	if err != nil {
		log := logger.FromContextOrDefault(r.Context(), h.logger)
		log.Error("Config change applied but not persisted",
			"section", section, "key", key, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError,
			"internal_server_error", "The value was applied but could not be persisted.")
		return
	}
	if prev == nil {
		prev = ""
	}
	shared.RespondWithJSON(w, r, http.StatusOK, prev)
}

// DeleteValue handles DELETE /_config/{section}/{key}: removes the
// explicit value and answers with it. The key falls back to its
// registered default, if any.
func (h *ConfigHandler) DeleteValue(w http.ResponseWriter, r *http.Request) {
	section, key, ok := h.params(w, r)
	if !ok {
		return
	}
	prev, err := h.store.Delete(section, key)
	switch {
	case errors.Is(err, config.ErrNotSet):
		shared.RespondWithError(w, r, http.StatusNotFound, "not_found", "unknown_config_value")
		return
	case err != nil:
		log := logger.FromContextOrDefault(r.Context(), h.logger)
		log.Error("Config removal applied but not persisted",
			"section", section, "key", key, "error", err)
		shared.RespondWithError(w, r, http.StatusInternalServerError,
			"internal_server_error", "The value was removed but the change could not be persisted.")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, prev)
}

func (h *ConfigHandler) params(w http.ResponseWriter, r *http.Request) (section, key string, ok bool) {
	section, err := pathParam(r, "section")
	if err == nil {
		key, err = pathParam(r, "key")
	}
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return "", "", false
	}
	return section, key, true
}
