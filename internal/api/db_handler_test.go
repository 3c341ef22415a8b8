package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseLifecycle(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	rr := e.do(http.MethodPut, "/invoices", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = e.do(http.MethodPut, "/invoices", "")
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.JSONEq(t,
		`{"error":"file_exists","reason":"The database could not be created, the file already exists."}`,
		rr.Body.String())

	rr = e.do(http.MethodGet, "/invoices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"db_name":"invoices","doc_count":0,"update_seq":0}`, rr.Body.String())

	rr = e.do(http.MethodDelete, "/invoices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = e.do(http.MethodGet, "/invoices", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not_found","reason":"Database does not exist."}`, rr.Body.String())

	rr = e.do(http.MethodDelete, "/invoices", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDatabaseNameValidation(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	valid := []string{"letters", "digits123", "db_with-every$char(ok)+more", "a"}
	for _, name := range valid {
		rr := e.do(http.MethodPut, "/"+url.PathEscape(name), "")
		assert.Equal(t, http.StatusCreated, rr.Code, "name %q: %s", name, rr.Body.String())
	}

	invalid := []string{"_users", "UPPER", "1starts-with-digit", "has space", "emojié"}
	for _, name := range invalid {
		rr := e.do(http.MethodPut, "/"+url.PathEscape(name), "")
		require.Equal(t, http.StatusBadRequest, rr.Code, "name %q", name)
		body := decode(t, rr)
		assert.Equal(t, "illegal_database_name", body["error"])
		reason, _ := body["reason"].(string)
		assert.True(t, strings.HasPrefix(reason, fmt.Sprintf("Name: '%s'.", name)), reason)
		assert.Contains(t, reason, "Must begin with a letter.")
	}
}

func TestAllDocs(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/books", "").Code)

	// Inserted out of order; listed sorted by id.
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/books/b", `{"n":2}`).Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPut, "/books/a", `{"n":1}`).Code)
	rr := e.do(http.MethodPut, "/books/c", `{"n":3}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	revC, _ := decode(t, rr)["rev"].(string)
	require.NotEmpty(t, revC)

	// Tombstones never show up.
	rr = e.do(http.MethodDelete, "/books/c?rev="+url.QueryEscape(revC), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var listing struct {
		TotalRows int `json:"total_rows"`
		Rows      []struct {
			ID    string `json:"id"`
			Key   string `json:"key"`
			Value struct {
				Rev string `json:"rev"`
			} `json:"value"`
			Doc map[string]any `json:"doc"`
		} `json:"rows"`
	}

	rr = e.do(http.MethodGet, "/books/_all_docs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Equal(t, 2, listing.TotalRows)
	require.Len(t, listing.Rows, 2)
	assert.Equal(t, "a", listing.Rows[0].ID)
	assert.Equal(t, "a", listing.Rows[0].Key)
	assert.True(t, strings.HasPrefix(listing.Rows[0].Value.Rev, "1-"))
	assert.Equal(t, "b", listing.Rows[1].ID)
	assert.Nil(t, listing.Rows[0].Doc)

	rr = e.do(http.MethodGet, "/books/_all_docs?include_docs=true", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Len(t, listing.Rows, 2)
	doc := listing.Rows[0].Doc
	require.NotNil(t, doc)
	assert.Equal(t, "a", doc["_id"])
	assert.Equal(t, listing.Rows[0].Value.Rev, doc["_rev"])
	assert.Equal(t, float64(1), doc["n"])

	rr = e.do(http.MethodGet, "/missing/_all_docs", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
