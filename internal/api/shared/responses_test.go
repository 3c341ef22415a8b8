package shared_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/api/shared"
	"github.com/phrazzld/duffel/internal/store"
)

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	shared.RespondWithJSON(w, r, http.StatusCreated, map[string]any{"ok": true, "id": "a"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true,"id":"a"}`, w.Body.String())
}

func TestRespondWithError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/db", nil)

	shared.RespondWithError(w, r, http.StatusPreconditionFailed, "file_exists", "already there")

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.JSONEq(t, `{"error":"file_exists","reason":"already there"}`, w.Body.String())
}

func TestRespondWithStoreError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "database not found",
			err:        store.ErrDatabaseNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "document not found",
			err:        store.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "database exists",
			err:        store.ErrDatabaseExists,
			wantStatus: http.StatusPreconditionFailed,
			wantCode:   "file_exists",
		},
		{
			name:       "update conflict",
			err:        store.ErrConflict,
			wantStatus: http.StatusConflict,
			wantCode:   "conflict",
		},
		{
			name:       "wrapped sentinel still maps",
			err:        fmt.Errorf("put doc: %w", store.ErrConflict),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict",
		},
		{
			name:       "unknown error becomes 500",
			err:        errors.New("disk on fire at /var/lib/duffel"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_server_error",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/db/doc", nil)

			shared.RespondWithStoreError(w, r, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)

			var body shared.ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error)
			assert.NotEmpty(t, body.Reason)
		})
	}
}

func TestRespondWithStoreErrorNeverLeaksDetail(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/db", nil)

	shared.RespondWithStoreError(w, r, errors.New("dial postgres://u:secret@db:5432: refused"))

	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), "5432")
}
