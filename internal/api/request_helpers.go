package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/duffel/internal/store"
)

// Parse failures surfaced to clients as 400 bad_request reasons.
var (
	errInvalidJSON = errors.New("invalid_json")
	errNotAnObject = errors.New("Document must be a JSON object")
	errRevMismatch = errors.New("Document rev from request body and query string differ")
)

// pathParam returns the named chi route parameter with URL escaping
// undone. chi routes on the escaped path, so a database named
// "org/tenants" arrives as one "org%2Ftenants" segment.
func pathParam(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("malformed %s in request path", name)
	}
	return value, nil
}

// docWrite is a parsed document mutation: the canonical body with the
// meta members stripped, plus whatever id and rev the client asserted.
type docWrite struct {
	id   string
	rev  string
	body json.RawMessage
}

// parseDocWrite decodes a document write request. The revision may
// arrive as _rev in the body or as the rev query parameter; asserting
// both with different values is rejected.
func parseDocWrite(r *http.Request) (*docWrite, error) {
	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, errInvalidJSON
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, errNotAnObject
	}

	write := &docWrite{}
	if id, ok := fields["_id"].(string); ok {
		write.id = id
	}
	if rev, ok := fields["_rev"].(string); ok {
		write.rev = rev
	}
	delete(fields, "_id")
	delete(fields, "_rev")

	if qrev := r.URL.Query().Get("rev"); qrev != "" {
		if write.rev != "" && write.rev != qrev {
			return nil, errRevMismatch
		}
		write.rev = qrev
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, errInvalidJSON
	}
	write.body = body
	return write, nil
}

// injectMeta returns the stored body with the _id and _rev members
// added back in.
func injectMeta(doc *store.Document) (json.RawMessage, error) {
	fields := make(map[string]any)
	if len(doc.Body) > 0 {
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			return nil, fmt.Errorf("stored document %q is not a JSON object: %w", doc.ID, err)
		}
	}
	fields["_id"] = doc.ID
	fields["_rev"] = doc.Rev
	return json.Marshal(fields)
}
