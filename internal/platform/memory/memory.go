// Package memory provides a volatile in-process storage backend. It
// exists for --in-memory mode and for tests; every database lives in a
// map keyed by the factory's location, so two factories rooted at
// different locations never see each other's data.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/phrazzld/duffel/internal/store"
)

func init() {
	store.Register("memory", &driver{roots: make(map[string]*root)})
}

type driver struct {
	mu    sync.Mutex
	roots map[string]*root
}

type root struct {
	dbs map[string]*database
}

func (d *driver) root(spec store.Spec) *root {
	loc := spec.Location()
	r, ok := d.roots[loc]
	if !ok {
		r = &root{dbs: make(map[string]*database)}
		d.roots[loc] = r
	}
	return r
}

func (d *driver) Create(_ context.Context, spec store.Spec, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.root(spec)
	if _, ok := r.dbs[name]; ok {
		return store.ErrDatabaseExists
	}
	r.dbs[name] = &database{name: name, docs: make(map[string]*store.Document)}
	return nil
}

func (d *driver) Open(_ context.Context, spec store.Spec, name string) (store.Database, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	db, ok := d.root(spec).dbs[name]
	if !ok {
		return nil, store.ErrDatabaseNotFound
	}
	return db, nil
}

func (d *driver) Delete(_ context.Context, spec store.Spec, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.root(spec)
	if _, ok := r.dbs[name]; !ok {
		return store.ErrDatabaseNotFound
	}
	delete(r.dbs, name)
	return nil
}

func (d *driver) List(_ context.Context, spec store.Spec) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.root(spec)
	names := make([]string, 0, len(r.dbs))
	for name := range r.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// database keeps live documents and tombstones in one map; tombstones
// stay behind so a recreate continues the revision chain.
type database struct {
	name string

	mu   sync.RWMutex
	docs map[string]*store.Document
	seq  int64
}

var _ store.Database = (*database)(nil)

func (db *database) Get(_ context.Context, id string) (*store.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	doc, ok := db.docs[id]
	if !ok || doc.Deleted {
		return nil, store.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (db *database) Put(_ context.Context, doc *store.Document, expectedRev string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	current := db.docs[doc.ID]
	currentRev := ""
	if current != nil {
		currentRev = current.Rev
	}
	if err := store.CheckRev(current, expectedRev); err != nil {
		return "", err
	}

	rev := store.NextRev(currentRev)
	body := make([]byte, len(doc.Body))
	copy(body, doc.Body)
	db.docs[doc.ID] = &store.Document{ID: doc.ID, Rev: rev, Body: body}
	db.seq++
	return rev, nil
}

func (db *database) Delete(_ context.Context, id, expectedRev string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	current, ok := db.docs[id]
	if !ok || current.Deleted {
		return "", store.ErrNotFound
	}
	if expectedRev != current.Rev {
		return "", store.ErrConflict
	}

	rev := store.NextRev(current.Rev)
	db.docs[id] = &store.Document{ID: id, Rev: rev, Deleted: true}
	db.seq++
	return rev, nil
}

func (db *database) AllDocs(_ context.Context) ([]*store.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	docs := make([]*store.Document, 0, len(db.docs))
	for _, doc := range db.docs {
		if doc.Deleted {
			continue
		}
		docs = append(docs, cloneDoc(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (db *database) Info(_ context.Context) (store.Info, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var count int64
	for _, doc := range db.docs {
		if !doc.Deleted {
			count++
		}
	}
	return store.Info{Name: db.name, DocCount: count, UpdateSeq: db.seq}, nil
}

// Close is a no-op: the driver owns the data, not the handle.
func (db *database) Close() error { return nil }

// cloneDoc copies a document and its body so callers can never alias
// the stored bytes.
func cloneDoc(doc *store.Document) *store.Document {
	cp := *doc
	if doc.Body != nil {
		cp.Body = make([]byte, len(doc.Body))
		copy(cp.Body, doc.Body)
	}
	return &cp
}
