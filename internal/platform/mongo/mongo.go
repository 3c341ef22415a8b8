// Package mongo stores each database as a collection. A catalog
// collection ("databases") tracks names and update sequences; document
// collections are named "docs.<escaped-name>". The factory's prefix is
// the connection URI; its path selects the MongoDB database (default
// "duffel"). Updates use conditional replacement on the stored revision
// so concurrent writers with the same expected revision cannot both
// win.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phrazzld/duffel/internal/store"
)

const (
	defaultDatabase   = "duffel"
	catalogCollection = "databases"
	collectionPrefix  = "docs."
)

func init() {
	store.Register("mongo", &driver{clients: make(map[string]*entry)})
}

type entry struct {
	once   sync.Once
	client *mongo.Client
	err    error
}

type driver struct {
	mu      sync.Mutex
	clients map[string]*entry
}

// conn returns the client and MongoDB database for the spec's URI,
// connecting once per URI.
func (d *driver) conn(ctx context.Context, spec store.Spec) (*mongo.Database, error) {
	uri := spec.Location()

	d.mu.Lock()
	e, ok := d.clients[uri]
	if !ok {
		e = &entry{}
		d.clients[uri] = e
	}
	d.mu.Unlock()

	e.once.Do(func() {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			e.err = fmt.Errorf("connecting to mongodb: %w", err)
			return
		}
		e.client = client
	})
	if e.err != nil {
		d.mu.Lock()
		if d.clients[uri] == e {
			delete(d.clients, uri)
		}
		d.mu.Unlock()
		return nil, e.err
	}
	return e.client.Database(databaseName(uri)), nil
}

// databaseName extracts the database from the URI path, falling back to
// the default when the path is empty or the URI does not parse.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

// collection maps a database name to its collection, percent-escaping
// characters (notably "$") that are legal in names but not in
// collection names.
func collection(name string) string {
	return collectionPrefix + url.QueryEscape(name)
}

type catalogRow struct {
	Name      string `bson:"_id"`
	UpdateSeq int64  `bson:"update_seq"`
}

func (d *driver) Create(ctx context.Context, spec store.Spec, name string) error {
	mdb, err := d.conn(ctx, spec)
	if err != nil {
		return err
	}
	_, err = mdb.Collection(catalogCollection).InsertOne(ctx, catalogRow{Name: name})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDatabaseExists
	}
	if err != nil {
		return fmt.Errorf("registering database: %w", err)
	}
	return nil
}

func (d *driver) Open(ctx context.Context, spec store.Spec, name string) (store.Database, error) {
	mdb, err := d.conn(ctx, spec)
	if err != nil {
		return nil, err
	}
	err = mdb.Collection(catalogCollection).
		FindOne(ctx, bson.M{"_id": name}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrDatabaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking database: %w", err)
	}
	return &database{name: name, mdb: mdb}, nil
}

func (d *driver) Delete(ctx context.Context, spec store.Spec, name string) error {
	mdb, err := d.conn(ctx, spec)
	if err != nil {
		return err
	}
	res, err := mdb.Collection(catalogCollection).DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("deregistering database: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrDatabaseNotFound
	}
	if err := mdb.Collection(collection(name)).Drop(ctx); err != nil {
		return fmt.Errorf("dropping collection: %w", err)
	}
	return nil
}

func (d *driver) List(ctx context.Context, spec store.Spec) ([]string, error) {
	mdb, err := d.conn(ctx, spec)
	if err != nil {
		return nil, err
	}
	cursor, err := mdb.Collection(catalogCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var row catalogRow
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decoding catalog row: %w", err)
		}
		names = append(names, row.Name)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return names, nil
}

// record is the BSON shape stored per document; the JSON body travels
// as an opaque string to keep it byte-exact.
type record struct {
	ID      string `bson:"_id"`
	Rev     string `bson:"rev"`
	Deleted bool   `bson:"deleted"`
	Body    string `bson:"body,omitempty"`
}

func (r *record) document() *store.Document {
	doc := &store.Document{ID: r.ID, Rev: r.Rev, Deleted: r.Deleted}
	if r.Body != "" {
		doc.Body = json.RawMessage(r.Body)
	}
	return doc
}

type database struct {
	name string
	mdb  *mongo.Database
}

var _ store.Database = (*database)(nil)

func (db *database) docs() *mongo.Collection {
	return db.mdb.Collection(collection(db.name))
}

func (db *database) load(ctx context.Context, id string) (*record, error) {
	var rec record
	err := db.docs().FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	return &rec, nil
}

func (db *database) Get(ctx context.Context, id string) (*store.Document, error) {
	rec, err := db.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Deleted {
		return nil, store.ErrNotFound
	}
	return rec.document(), nil
}

func (db *database) Put(ctx context.Context, doc *store.Document, expectedRev string) (string, error) {
	current, err := db.load(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	var currentDoc *store.Document
	if current != nil {
		currentDoc = current.document()
	}
	if err := store.CheckRev(currentDoc, expectedRev); err != nil {
		return "", err
	}
	currentRev := ""
	if current != nil {
		currentRev = current.Rev
	}
	rev := store.NextRev(currentRev)
	next := record{ID: doc.ID, Rev: rev, Body: string(doc.Body)}

	if current == nil {
		_, err = db.docs().InsertOne(ctx, next)
		// Two creators can both read an absent document; the unique _id
		// decides the winner.
		if mongo.IsDuplicateKeyError(err) {
			return "", store.ErrConflict
		}
	} else {
		var res *mongo.UpdateResult
		res, err = db.docs().ReplaceOne(ctx,
			bson.M{"_id": doc.ID, "rev": current.Rev}, next)
		if err == nil && res.MatchedCount == 0 {
			return "", store.ErrConflict
		}
	}
	if err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	if err := db.bumpSeq(ctx); err != nil {
		return "", err
	}
	return rev, nil
}

func (db *database) Delete(ctx context.Context, id, expectedRev string) (string, error) {
	current, err := db.load(ctx, id)
	if err != nil {
		return "", err
	}
	if current == nil || current.Deleted {
		return "", store.ErrNotFound
	}
	if expectedRev != current.Rev {
		return "", store.ErrConflict
	}
	rev := store.NextRev(current.Rev)

	res, err := db.docs().ReplaceOne(ctx,
		bson.M{"_id": id, "rev": current.Rev},
		record{ID: id, Rev: rev, Deleted: true})
	if err != nil {
		return "", fmt.Errorf("writing tombstone: %w", err)
	}
	if res.MatchedCount == 0 {
		return "", store.ErrConflict
	}
	if err := db.bumpSeq(ctx); err != nil {
		return "", err
	}
	return rev, nil
}

func (db *database) AllDocs(ctx context.Context) ([]*store.Document, error) {
	cursor, err := db.docs().Find(ctx, bson.M{"deleted": false},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*store.Document
	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding document: %w", err)
		}
		docs = append(docs, rec.document())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (db *database) Info(ctx context.Context) (store.Info, error) {
	var row catalogRow
	err := db.mdb.Collection(catalogCollection).
		FindOne(ctx, bson.M{"_id": db.name}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Info{}, store.ErrDatabaseNotFound
	}
	if err != nil {
		return store.Info{}, fmt.Errorf("reading update sequence: %w", err)
	}
	count, err := db.docs().CountDocuments(ctx, bson.M{"deleted": false})
	if err != nil {
		return store.Info{}, fmt.Errorf("counting documents: %w", err)
	}
	return store.Info{Name: db.name, DocCount: count, UpdateSeq: row.UpdateSeq}, nil
}

// Close is a no-op: the client is shared by every database at the same
// URI and lives for the process.
func (db *database) Close() error { return nil }

func (db *database) bumpSeq(ctx context.Context) error {
	_, err := db.mdb.Collection(catalogCollection).UpdateOne(ctx,
		bson.M{"_id": db.name}, bson.M{"$inc": bson.M{"update_seq": 1}})
	if err != nil {
		return fmt.Errorf("bumping update sequence: %w", err)
	}
	return nil
}
