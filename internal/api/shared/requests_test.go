package shared_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/api/shared"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"ada","n":3}`))

	var got map[string]any
	require.NoError(t, shared.DecodeJSON(r, &got))
	assert.Equal(t, "ada", got["name"])
	assert.EqualValues(t, 3, got["n"])
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{nope"))

	var got map[string]any
	assert.Error(t, shared.DecodeJSON(r, &got))
}
