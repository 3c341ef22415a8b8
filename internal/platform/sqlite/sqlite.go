// Package sqlite is the default storage backend: one SQLite file per
// database under the configured directory, accessed through
// database/sql with the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/phrazzld/duffel/internal/store"
)

const fileSuffix = ".sqlite3"

func init() {
	store.Register("sqlite", driver{})
}

type driver struct{}

// path maps a database name to its file, percent-escaping characters
// (notably "/") that are legal in names but not in file names.
func path(spec store.Spec, name string) string {
	return filepath.Join(spec.Dir, url.PathEscape(name)+fileSuffix)
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id      TEXT PRIMARY KEY,
	rev     TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	body    BLOB
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO meta (key, value) VALUES ('update_seq', 0);
`

func (driver) Create(ctx context.Context, spec store.Spec, name string) error {
	// O_EXCL claims the file atomically; a lost race reports the
	// database as already present.
	f, err := os.OpenFile(path(spec, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return store.ErrDatabaseExists
		}
		return fmt.Errorf("creating database file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing database file: %w", err)
	}

	db, err := open(path(spec, name))
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (driver) Open(ctx context.Context, spec store.Spec, name string) (store.Database, error) {
	p := path(spec, name)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("checking database file: %w", err)
	}
	db, err := open(p)
	if err != nil {
		return nil, err
	}
	// Re-apply the schema: the file may predate this process or have
	// been created by an external tool.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &database{name: name, db: db}, nil
}

func (driver) Delete(_ context.Context, spec store.Spec, name string) error {
	p := path(spec, name)
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return store.ErrDatabaseNotFound
		}
		return fmt.Errorf("removing database file: %w", err)
	}
	// WAL sidecars are best-effort.
	os.Remove(p + "-wal")
	os.Remove(p + "-shm")
	return nil
}

func (driver) List(_ context.Context, spec store.Spec) ([]string, error) {
	entries, err := os.ReadDir(spec.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading database directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(entry.Name(), fileSuffix))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func open(p string) (*sql.DB, error) {
	dsn := "file:" + p + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite file: %w", err)
	}
	// SQLite allows one writer; a single pooled connection keeps
	// serialization in Go instead of in busy-loop retries.
	db.SetMaxOpenConns(1)
	return db, nil
}

type database struct {
	name string
	db   *sql.DB
}

var _ store.Database = (*database)(nil)

func (d *database) Get(ctx context.Context, id string) (*store.Document, error) {
	var doc store.Document
	var deleted int
	err := d.db.QueryRowContext(ctx,
		"SELECT id, rev, deleted, body FROM documents WHERE id = ?", id,
	).Scan(&doc.ID, &doc.Rev, &deleted, &doc.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if deleted != 0 {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (d *database) Put(ctx context.Context, doc *store.Document, expectedRev string) (string, error) {
	var rev string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentDoc(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		if err := store.CheckRev(current, expectedRev); err != nil {
			return err
		}
		currentRev := ""
		if current != nil {
			currentRev = current.Rev
		}
		rev = store.NextRev(currentRev)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (id, rev, deleted, body) VALUES (?, ?, 0, ?)
			ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, deleted = 0, body = excluded.body`,
			doc.ID, rev, []byte(doc.Body))
		if err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		return bumpSeq(ctx, tx)
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

func (d *database) Delete(ctx context.Context, id, expectedRev string) (string, error) {
	var rev string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		current, err := currentDoc(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil || current.Deleted {
			return store.ErrNotFound
		}
		if expectedRev != current.Rev {
			return store.ErrConflict
		}
		rev = store.NextRev(current.Rev)

		_, err = tx.ExecContext(ctx,
			"UPDATE documents SET rev = ?, deleted = 1, body = NULL WHERE id = ?", rev, id)
		if err != nil {
			return fmt.Errorf("writing tombstone: %w", err)
		}
		return bumpSeq(ctx, tx)
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

func (d *database) AllDocs(ctx context.Context) ([]*store.Document, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, rev, body FROM documents WHERE deleted = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Rev, &doc.Body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (d *database) Info(ctx context.Context) (store.Info, error) {
	info := store.Info{Name: d.name}
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE deleted = 0").Scan(&info.DocCount)
	if err != nil {
		return store.Info{}, fmt.Errorf("counting documents: %w", err)
	}
	err = d.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = 'update_seq'").Scan(&info.UpdateSeq)
	if err != nil {
		return store.Info{}, fmt.Errorf("reading update sequence: %w", err)
	}
	return info, nil
}

func (d *database) Close() error {
	return d.db.Close()
}

// withTx runs fn inside an immediate transaction so the revision check
// and the write it guards are atomic under concurrent writers.
func (d *database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func currentDoc(ctx context.Context, tx *sql.Tx, id string) (*store.Document, error) {
	var doc store.Document
	var deleted int
	err := tx.QueryRowContext(ctx,
		"SELECT id, rev, deleted FROM documents WHERE id = ?", id,
	).Scan(&doc.ID, &doc.Rev, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading current revision: %w", err)
	}
	doc.Deleted = deleted != 0
	return &doc, nil
}

func bumpSeq(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE meta SET value = value + 1 WHERE key = 'update_seq'")
	if err != nil {
		return fmt.Errorf("bumping update sequence: %w", err)
	}
	return nil
}
