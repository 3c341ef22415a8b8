package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/api"
	"github.com/phrazzld/duffel/internal/config"
	"github.com/phrazzld/duffel/internal/gateway"
	_ "github.com/phrazzld/duffel/internal/platform/memory"
)

// engine is a full router over an in-memory backend, wired the way
// cmd/server wires it: the backend selector bound to the runtime store
// through a binder.
type engine struct {
	cfg     *config.Store
	dataDir string
	handler http.Handler
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.NewStore(filepath.Join(t.TempDir(), "config.json"), log)

	dataDir := t.TempDir()
	selector := gateway.NewBackendSelector(cfg, config.StoreConfig{InMemory: true, Dir: dataDir}, log)
	binder := config.NewBinder(cfg, log)
	require.NoError(t, binder.Bind("backend", selector.Keys(), selector.Rebuild))

	return &engine{
		cfg:     cfg,
		dataDir: dataDir,
		handler: api.NewRouter(api.RouterConfig{
			Factories: selector,
			Config:    cfg,
			Logger:    log,
		}),
	}
}

func (e *engine) do(method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func TestRouterNoBackendConfigured(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.NewStore("", log)
	// Never rebuilt, so the selector has no factory to hand out.
	selector := gateway.NewBackendSelector(cfg, config.StoreConfig{InMemory: true}, log)
	handler := api.NewRouter(api.RouterConfig{Factories: selector, Config: cfg, Logger: log})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/_all_dbs", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t,
		`{"error":"internal_server_error","reason":"No storage backend is configured."}`,
		rr.Body.String())
}

func TestRouterBackendSwapThroughConfigAPI(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	rr := e.do(http.MethodPut, "/dbone", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = e.do(http.MethodGet, "/_all_dbs", "")
	require.JSONEq(t, `["dbone"]`, rr.Body.String())

	// Point the engine at a fresh directory. The response carries the
	// previous one.
	next, err := json.Marshal(t.TempDir())
	require.NoError(t, err)
	rr = e.do(http.MethodPut, "/_config/couchdb/database_dir", string(next))
	require.Equal(t, http.StatusOK, rr.Code)
	var prev string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &prev))
	assert.Equal(t, e.dataDir, prev)

	rr = e.do(http.MethodGet, "/_all_dbs", "")
	assert.JSONEq(t, `[]`, rr.Body.String())
	rr = e.do(http.MethodGet, "/dbone", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The old factory was replaced, not destroyed: switching back
	// resurfaces its databases.
	restore, err := json.Marshal(prev)
	require.NoError(t, err)
	rr = e.do(http.MethodPut, "/_config/couchdb/database_dir", string(restore))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(http.MethodGet, "/_all_dbs", "")
	assert.JSONEq(t, `["dbone"]`, rr.Body.String())
}

func TestRouterEscapedDatabaseNames(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	rr := e.do(http.MethodPut, "/org%2Fmain", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(http.MethodGet, "/_all_dbs", "")
	assert.JSONEq(t, `["org/main"]`, rr.Body.String())

	rr = e.do(http.MethodGet, "/org%2Fmain", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "org/main", decode(t, rr)["db_name"])

	rr = e.do(http.MethodPut, "/org%2Fmain/doc1", `{"kind":"tenant"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = e.do(http.MethodGet, "/org%2Fmain/doc1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "doc1", decode(t, rr)["_id"])

	rr = e.do(http.MethodDelete, "/org%2Fmain", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterResponsesAreJSON(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	for _, target := range []string{"/", "/_all_dbs", "/_uuids", "/_config", "/nosuchdb"} {
		rr := e.do(http.MethodGet, target, "")
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), target)
	}
}
