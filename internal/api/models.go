package api

import "encoding/json"

// Common response structures, shaped the way CouchDB clients expect.

// welcomeResponse is the GET / body.
type welcomeResponse struct {
	Duffel  string `json:"duffel"`
	Version string `json:"version"`
	Vendor  vendor `json:"vendor"`
}

type vendor struct {
	Name string `json:"name"`
}

// uuidsResponse is the GET /_uuids body.
type uuidsResponse struct {
	UUIDs []string `json:"uuids"`
}

// okResponse acknowledges a successful mutation. ID and Rev are set
// for document writes.
type okResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id,omitempty"`
	Rev string `json:"rev,omitempty"`
}

// allDocsResponse is the GET /{db}/_all_docs body.
type allDocsResponse struct {
	TotalRows int          `json:"total_rows"`
	Rows      []allDocsRow `json:"rows"`
}

type allDocsRow struct {
	ID    string          `json:"id"`
	Key   string          `json:"key"`
	Value rowValue        `json:"value"`
	Doc   json.RawMessage `json:"doc,omitempty"`
}

type rowValue struct {
	Rev string `json:"rev"`
}
