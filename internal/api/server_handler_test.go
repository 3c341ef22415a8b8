package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/api"
)

func TestWelcome(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	rr := e.do(http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "Welcome", body["duffel"])
	assert.Equal(t, api.Version, body["version"])
	vendor, ok := body["vendor"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "duffel", vendor["name"])
}

func TestAllDBs(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	rr := e.do(http.MethodGet, "/_all_dbs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/zebra", "").Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/aardvark", "").Code)

	rr = e.do(http.MethodGet, "/_all_dbs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["aardvark","zebra"]`, rr.Body.String())
}

func TestUUIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		status int
		count  int
		reason string
	}{
		{name: "default_one", target: "/_uuids", status: http.StatusOK, count: 1},
		{name: "explicit_count", target: "/_uuids?count=5", status: http.StatusOK, count: 5},
		{name: "zero", target: "/_uuids?count=0", status: http.StatusOK, count: 0},
		{
			name:   "negative",
			target: "/_uuids?count=-1",
			status: http.StatusBadRequest,
			reason: "count must be a non-negative integer",
		},
		{
			name:   "not_a_number",
			target: "/_uuids?count=many",
			status: http.StatusBadRequest,
			reason: "count must be a non-negative integer",
		},
		{
			name:   "over_cap",
			target: "/_uuids?count=1001",
			status: http.StatusBadRequest,
			reason: "count must not exceed 1000",
		},
	}

	e := newEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(http.MethodGet, tt.target, "")
			require.Equal(t, tt.status, rr.Code, rr.Body.String())

			body := decode(t, rr)
			if tt.reason != "" {
				assert.Equal(t, "bad_request", body["error"])
				assert.Equal(t, tt.reason, body["reason"])
				return
			}

			uuids, ok := body["uuids"].([]any)
			require.True(t, ok)
			require.Len(t, uuids, tt.count)
			seen := make(map[string]bool, len(uuids))
			for _, id := range uuids {
				s, ok := id.(string)
				require.True(t, ok)
				assert.Len(t, s, 36)
				assert.False(t, seen[s], "duplicate uuid %s", s)
				seen[s] = true
			}
		})
	}
}
