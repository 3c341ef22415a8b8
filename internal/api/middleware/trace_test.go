package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/api/middleware"
	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/platform/logger"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line), raw)
		lines = append(lines, line)
	}
	return lines
}

func TestRequestLoggerEmitsRequestLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var traceID string
	handler := middleware.RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotEmpty(t, traceID)
	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "Request served", line["msg"])
	assert.Equal(t, http.MethodGet, line["method"])
	assert.Equal(t, "/books", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, traceID, line["trace_id"])
	assert.Contains(t, line, "latency")
	assert.Contains(t, line, "remote_addr")
}

func TestRequestLoggerScopesContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := middleware.RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		require.NotNil(t, log)
		log.Info("Handling request")
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "Handling request", lines[0]["msg"])
	assert.Equal(t, "Request served", lines[1]["msg"])
	assert.NotEmpty(t, lines[0]["trace_id"])
	assert.Equal(t, lines[1]["trace_id"], lines[0]["trace_id"],
		"handler logs and the request line share one trace id")
}

func TestRequestLoggerTraceIDsDiffer(t *testing.T) {
	t.Parallel()

	var ids []string
	handler := middleware.RequestLogger(slog.New(slog.NewJSONHandler(new(bytes.Buffer), nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids = append(ids, shared.GetTraceID(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
}

func TestRequestLoggerNilBase(t *testing.T) {
	t.Parallel()

	handler := middleware.RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}
