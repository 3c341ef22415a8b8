// Package redis stores databases in Redis:
//
//	<ns>:dbs            set of database names
//	<ns>:db:<name>      hash mapping document id to JSON record
//	<ns>:db:<name>:seq  update sequence counter
//
// The factory's prefix is a redis URL; an optional #fragment overrides
// the key namespace (default "duffel"), so several gateways can share
// one server. Revision checks run under WATCH so concurrent writers
// with the same expected revision cannot both win.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/duffel/internal/store"
)

const defaultNamespace = "duffel"

// watchRetries bounds optimistic-lock retries when unrelated writes to
// the same hash keep invalidating the transaction.
const watchRetries = 64

func init() {
	store.Register("redis", &driver{clients: make(map[string]*redis.Client)})
}

type driver struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
}

// conn parses the location, splitting off the #namespace fragment, and
// returns a pooled client shared by every database at that server.
func (d *driver) conn(spec store.Spec) (*redis.Client, string, error) {
	loc := spec.Location()
	ns := defaultNamespace
	if at := strings.LastIndex(loc, "#"); at >= 0 {
		if frag := loc[at+1:]; frag != "" {
			ns = frag
		}
		loc = loc[:at]
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if client, ok := d.clients[loc]; ok {
		return client, ns, nil
	}
	opts, err := redis.ParseURL(loc)
	if err != nil {
		return nil, "", fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	d.clients[loc] = client
	return client, ns, nil
}

func dbsKey(ns string) string        { return ns + ":dbs" }
func docsKey(ns, name string) string { return ns + ":db:" + name }
func seqKey(ns, name string) string  { return ns + ":db:" + name + ":seq" }

func (d *driver) Create(ctx context.Context, spec store.Spec, name string) error {
	client, ns, err := d.conn(spec)
	if err != nil {
		return err
	}
	added, err := client.SAdd(ctx, dbsKey(ns), name).Result()
	if err != nil {
		return fmt.Errorf("registering database: %w", err)
	}
	if added == 0 {
		return store.ErrDatabaseExists
	}
	return nil
}

func (d *driver) Open(ctx context.Context, spec store.Spec, name string) (store.Database, error) {
	client, ns, err := d.conn(spec)
	if err != nil {
		return nil, err
	}
	ok, err := client.SIsMember(ctx, dbsKey(ns), name).Result()
	if err != nil {
		return nil, fmt.Errorf("checking database: %w", err)
	}
	if !ok {
		return nil, store.ErrDatabaseNotFound
	}
	return &database{name: name, ns: ns, client: client}, nil
}

func (d *driver) Delete(ctx context.Context, spec store.Spec, name string) error {
	client, ns, err := d.conn(spec)
	if err != nil {
		return err
	}
	removed, err := client.SRem(ctx, dbsKey(ns), name).Result()
	if err != nil {
		return fmt.Errorf("deregistering database: %w", err)
	}
	if removed == 0 {
		return store.ErrDatabaseNotFound
	}
	if err := client.Del(ctx, docsKey(ns, name), seqKey(ns, name)).Err(); err != nil {
		return fmt.Errorf("dropping database keys: %w", err)
	}
	return nil
}

func (d *driver) List(ctx context.Context, spec store.Spec) ([]string, error) {
	client, ns, err := d.conn(spec)
	if err != nil {
		return nil, err
	}
	names, err := client.SMembers(ctx, dbsKey(ns)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// record is the JSON value stored per document in the hash.
type record struct {
	Rev     string          `json:"rev"`
	Deleted bool            `json:"deleted,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

type database struct {
	name   string
	ns     string
	client *redis.Client
}

var _ store.Database = (*database)(nil)

func (db *database) key() string    { return docsKey(db.ns, db.name) }
func (db *database) seqKey() string { return seqKey(db.ns, db.name) }

func (db *database) load(ctx context.Context, c redis.Cmdable, id string) (*store.Document, error) {
	raw, err := c.HGet(ctx, db.key(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding document record: %w", err)
	}
	return &store.Document{ID: id, Rev: rec.Rev, Deleted: rec.Deleted, Body: rec.Body}, nil
}

func (db *database) Get(ctx context.Context, id string) (*store.Document, error) {
	doc, err := db.load(ctx, db.client, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (db *database) Put(ctx context.Context, doc *store.Document, expectedRev string) (string, error) {
	var rev string
	err := db.casWrite(ctx, doc.ID, func(current *store.Document) (record, error) {
		if err := store.CheckRev(current, expectedRev); err != nil {
			return record{}, err
		}
		currentRev := ""
		if current != nil {
			currentRev = current.Rev
		}
		rev = store.NextRev(currentRev)
		return record{Rev: rev, Body: doc.Body}, nil
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

func (db *database) Delete(ctx context.Context, id, expectedRev string) (string, error) {
	var rev string
	err := db.casWrite(ctx, id, func(current *store.Document) (record, error) {
		if current == nil || current.Deleted {
			return record{}, store.ErrNotFound
		}
		if expectedRev != current.Rev {
			return record{}, store.ErrConflict
		}
		rev = store.NextRev(current.Rev)
		return record{Rev: rev, Deleted: true}, nil
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

// casWrite reads the current record for id under WATCH, asks decide for
// the replacement, and commits it together with a sequence bump. A
// failed transaction re-reads and re-decides, so a lost race surfaces
// as whatever decide returns against the winner's revision.
func (db *database) casWrite(ctx context.Context, id string, decide func(current *store.Document) (record, error)) error {
	for attempt := 0; attempt < watchRetries; attempt++ {
		err := db.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := db.load(ctx, tx, id)
			if err != nil {
				return err
			}
			rec, err := decide(current)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding document record: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, db.key(), id, payload)
				pipe.Incr(ctx, db.seqKey())
				return nil
			})
			return err
		}, db.key())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction retries exhausted: %w", store.ErrConflict)
}

func (db *database) AllDocs(ctx context.Context) ([]*store.Document, error) {
	raw, err := db.client.HGetAll(ctx, db.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	docs := make([]*store.Document, 0, len(raw))
	for id, val := range raw {
		var rec record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("decoding document record: %w", err)
		}
		if rec.Deleted {
			continue
		}
		docs = append(docs, &store.Document{ID: id, Rev: rec.Rev, Body: rec.Body})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (db *database) Info(ctx context.Context) (store.Info, error) {
	raw, err := db.client.HGetAll(ctx, db.key()).Result()
	if err != nil {
		return store.Info{}, fmt.Errorf("counting documents: %w", err)
	}
	var count int64
	for _, val := range raw {
		var rec record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return store.Info{}, fmt.Errorf("decoding document record: %w", err)
		}
		if !rec.Deleted {
			count++
		}
	}
	seq, err := db.client.Get(ctx, db.seqKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return store.Info{}, fmt.Errorf("reading update sequence: %w", err)
	}
	return store.Info{Name: db.name, DocCount: count, UpdateSeq: seq}, nil
}

// Close is a no-op: the pooled client is shared by every database at
// the same server and lives for the process.
func (db *database) Close() error { return nil }
