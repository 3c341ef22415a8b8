package store

import "errors"

// Common store errors shared by all backend implementations. Handlers
// map these onto CouchDB-style HTTP error bodies, so backends must
// return them (wrapped is fine) rather than engine-specific errors.
var (
	// ErrNotFound is returned when a document does not exist or has
	// been deleted.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when the expected revision presented with
	// a write does not match the document's current revision.
	ErrConflict = errors.New("document update conflict")

	// ErrDatabaseExists is returned by Create when the database name is
	// already taken.
	ErrDatabaseExists = errors.New("database already exists")

	// ErrDatabaseNotFound is returned when the named database does not
	// exist.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrUnknownDriver is returned when a Spec names a driver that was
	// never registered.
	ErrUnknownDriver = errors.New("unknown storage driver")
)
