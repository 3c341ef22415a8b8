// Package postgres stores every database in one PostgreSQL database: a
// databases table carries names and update sequences, a documents table
// carries the JSONB bodies. The factory's prefix is the connection DSN;
// the schema is managed with embedded goose migrations applied on first
// connect.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/phrazzld/duffel/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseSetup sync.Once

func init() {
	store.Register("postgres", &driver{pools: make(map[string]*pool)})
}

type pool struct {
	once sync.Once
	db   *sql.DB
	err  error
}

type driver struct {
	mu    sync.Mutex
	pools map[string]*pool
}

// conn returns the pooled connection for the spec's DSN, opening it and
// applying migrations exactly once per DSN.
func (d *driver) conn(ctx context.Context, spec store.Spec) (*sql.DB, error) {
	dsn := spec.Location()

	d.mu.Lock()
	p, ok := d.pools[dsn]
	if !ok {
		p = &pool{}
		d.pools[dsn] = p
	}
	d.mu.Unlock()

	p.once.Do(func() {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			p.err = fmt.Errorf("opening postgres pool: %w", err)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			p.err = fmt.Errorf("pinging postgres: %w", err)
			return
		}
		gooseSetup.Do(func() {
			goose.SetBaseFS(migrationsFS)
			goose.SetLogger(goose.NopLogger())
			p.err = goose.SetDialect("postgres")
		})
		if p.err != nil {
			db.Close()
			return
		}
		if err := goose.Up(db, "migrations"); err != nil {
			db.Close()
			p.err = fmt.Errorf("applying migrations: %w", err)
			return
		}
		p.db = db
	})
	if p.err != nil {
		// Drop the failed entry so a later rebuild can retry the DSN.
		d.mu.Lock()
		if d.pools[dsn] == p {
			delete(d.pools, dsn)
		}
		d.mu.Unlock()
	}
	return p.db, p.err
}

func (d *driver) Create(ctx context.Context, spec store.Spec, name string) error {
	db, err := d.conn(ctx, spec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "INSERT INTO databases (name) VALUES ($1)", name)
	if isUniqueViolation(err) {
		return store.ErrDatabaseExists
	}
	if err != nil {
		return fmt.Errorf("registering database: %w", err)
	}
	return nil
}

func (d *driver) Open(ctx context.Context, spec store.Spec, name string) (store.Database, error) {
	db, err := d.conn(ctx, spec)
	if err != nil {
		return nil, err
	}
	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM databases WHERE name = $1", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDatabaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking database: %w", err)
	}
	return &database{name: name, db: db}, nil
}

func (d *driver) Delete(ctx context.Context, spec store.Spec, name string) error {
	db, err := d.conn(ctx, spec)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM databases WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("deleting database: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting database: %w", err)
	}
	if affected == 0 {
		return store.ErrDatabaseNotFound
	}
	return nil
}

func (d *driver) List(ctx context.Context, spec store.Spec) ([]string, error) {
	db, err := d.conn(ctx, spec)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT name FROM databases ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning database name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return names, nil
}

type database struct {
	name string
	db   *sql.DB
}

var _ store.Database = (*database)(nil)

func (d *database) Get(ctx context.Context, id string) (*store.Document, error) {
	var doc store.Document
	var deleted bool
	err := d.db.QueryRowContext(ctx,
		"SELECT id, rev, deleted, body FROM documents WHERE db_name = $1 AND id = $2",
		d.name, id,
	).Scan(&doc.ID, &doc.Rev, &deleted, &doc.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if deleted {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (d *database) Put(ctx context.Context, doc *store.Document, expectedRev string) (string, error) {
	var rev string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		current, err := d.currentDoc(ctx, tx, doc.ID)
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

		if current == nil {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO documents (db_name, id, rev, deleted, body) VALUES ($1, $2, $3, FALSE, $4)",
				d.name, doc.ID, rev, []byte(doc.Body))
			// Two creators can both read an absent row; the insert's
			// primary key decides the winner.
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
		} else {
			_, err = tx.ExecContext(ctx,
				"UPDATE documents SET rev = $3, deleted = FALSE, body = $4 WHERE db_name = $1 AND id = $2",
				d.name, doc.ID, rev, []byte(doc.Body))
		}
		if err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		return d.bumpSeq(ctx, tx)
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

func (d *database) Delete(ctx context.Context, id, expectedRev string) (string, error) {
	var rev string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		current, err := d.currentDoc(ctx, tx, id)
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
			"UPDATE documents SET rev = $3, deleted = TRUE, body = NULL WHERE db_name = $1 AND id = $2",
			d.name, id, rev)
		if err != nil {
			return fmt.Errorf("writing tombstone: %w", err)
		}
		return d.bumpSeq(ctx, tx)
	})
	if err != nil {
		return "", err
	}
	return rev, nil
}

func (d *database) AllDocs(ctx context.Context) ([]*store.Document, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, rev, body FROM documents WHERE db_name = $1 AND NOT deleted ORDER BY id",
		d.name)
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
		"SELECT update_seq FROM databases WHERE name = $1", d.name).Scan(&info.UpdateSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Info{}, store.ErrDatabaseNotFound
	}
	if err != nil {
		return store.Info{}, fmt.Errorf("reading update sequence: %w", err)
	}
	err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE db_name = $1 AND NOT deleted", d.name).
		Scan(&info.DocCount)
	if err != nil {
		return store.Info{}, fmt.Errorf("counting documents: %w", err)
	}
	return info, nil
}

// Close is a no-op: the pool is shared by every database at the same
// DSN and lives for the process.
func (d *database) Close() error { return nil }

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

// currentDoc reads the stored revision for id, locking the row so the
// subsequent write is atomic with the check.
func (d *database) currentDoc(ctx context.Context, tx *sql.Tx, id string) (*store.Document, error) {
	var doc store.Document
	err := tx.QueryRowContext(ctx,
		"SELECT id, rev, deleted FROM documents WHERE db_name = $1 AND id = $2 FOR UPDATE",
		d.name, id,
	).Scan(&doc.ID, &doc.Rev, &doc.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading current revision: %w", err)
	}
	return &doc, nil
}

func (d *database) bumpSeq(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE databases SET update_seq = update_seq + 1 WHERE name = $1", d.name)
	if err != nil {
		return fmt.Errorf("bumping update sequence: %w", err)
	}
	return nil
}
