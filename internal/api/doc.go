// Package api implements the document engine's HTTP surface: server
// endpoints (welcome, _all_dbs, _uuids), the runtime _config API, and
// database/document CRUD with CouchDB-shaped request and response
// bodies. Handlers never hold a database factory themselves; they use
// the snapshot the factory middleware bound to the request context, so
// a live backend swap never affects a request already in flight.
package api
