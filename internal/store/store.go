package store

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Spec describes where and how databases are stored. It is an immutable
// value: the backend selector builds a fresh Spec on every relevant
// configuration change and opens a new Factory from it.
type Spec struct {
	// Dir is the resolved absolute directory for file-backed engines.
	Dir string

	// Driver is the registered driver name (e.g. "sqlite", "memory").
	Driver string

	// Prefix overrides Dir for engines addressed by a URI-like prefix
	// instead of a filesystem path (e.g. "redis://localhost:6379/0").
	Prefix string
}

// Location returns the address the driver should use: the key prefix
// when one is set, otherwise the storage directory.
func (s Spec) Location() string {
	if s.Prefix != "" {
		return s.Prefix
	}
	return s.Dir
}

// Document is the unit of storage. Body holds the raw JSON object
// without the _id/_rev members; those travel in ID and Rev.
type Document struct {
	ID      string
	Rev     string
	Deleted bool
	Body    json.RawMessage
}

// Info summarizes a single database.
type Info struct {
	Name      string `json:"db_name"`
	DocCount  int64  `json:"doc_count"`
	UpdateSeq int64  `json:"update_seq"`
}

// Driver creates, opens, enumerates and destroys databases for one
// storage engine. Implementations register themselves under a stable
// name via Register, mirroring the database/sql driver convention.
type Driver interface {
	// Create makes a new empty database.
	// Returns ErrDatabaseExists if the name is already taken.
	Create(ctx context.Context, spec Spec, name string) error

	// Open returns a handle to an existing database.
	// Returns ErrDatabaseNotFound if it does not exist.
	Open(ctx context.Context, spec Spec, name string) (Database, error)

	// Delete destroys a database and all of its documents.
	// Returns ErrDatabaseNotFound if it does not exist.
	Delete(ctx context.Context, spec Spec, name string) error

	// List returns the names of all databases, sorted ascending.
	List(ctx context.Context, spec Spec) ([]string, error)
}

// Database is a handle to one named document database. Implementations
// must make Put and Delete atomic with respect to the revision check:
// two concurrent writers presenting the same expected revision must not
// both succeed.
type Database interface {
	// Get returns the live document with the given id.
	// Returns ErrNotFound for absent ids and for tombstones.
	Get(ctx context.Context, id string) (*Document, error)

	// Put creates or replaces a document. expectedRev must be empty for
	// a create and must equal the current revision for an update;
	// otherwise ErrConflict is returned. On success the new revision is
	// returned.
	Put(ctx context.Context, doc *Document, expectedRev string) (string, error)

	// Delete writes a tombstone for the document. expectedRev must
	// equal the current revision or ErrConflict is returned.
	Delete(ctx context.Context, id, expectedRev string) (string, error)

	// AllDocs returns all live documents sorted by id.
	AllDocs(ctx context.Context) ([]*Document, error)

	// Info reports document count and update sequence.
	Info(ctx context.Context) (Info, error)

	// Close releases the handle. Safe to call more than once.
	Close() error
}

// CheckRev applies the revision rules shared by every backend: an
// absent document (current == nil) accepts only an empty expected
// revision; a tombstone accepts an empty expected revision or its own;
// a live document demands its current revision exactly. Any other
// combination is ErrConflict.
func CheckRev(current *Document, expectedRev string) error {
	switch {
	case current == nil:
		if expectedRev != "" {
			return ErrConflict
		}
	case current.Deleted:
		if expectedRev != "" && expectedRev != current.Rev {
			return ErrConflict
		}
	default:
		if expectedRev != current.Rev {
			return ErrConflict
		}
	}
	return nil
}

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_$()+/-]*$`)

// ValidName reports whether name is a legal database name: a lowercase
// letter followed by lowercase letters, digits, or any of _$()+/-.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Generation returns the numeric generation of a revision string, the
// part before the dash. A malformed or empty revision yields 0.
func Generation(rev string) int {
	num, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	gen, err := strconv.Atoi(num)
	if err != nil || gen < 0 {
		return 0
	}
	return gen
}

// NextRev derives the successor revision for a document whose current
// revision is rev (empty for a brand-new document). Revisions have the
// form "<generation>-<ulid>"; the ULID tail keeps them unique and
// time-ordered across backends.
func NextRev(rev string) string {
	gen := Generation(rev) + 1
	return strconv.Itoa(gen) + "-" + strings.ToLower(ulid.Make().String())
}
