package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/shelfdb/shelf/pkg/types"
)

// SQLite implements Engine on a single local SQLite database file.
//
// Mapping: every collection gets one record table rs_<name> keyed by the
// primary key, and one entry table ix_<name>_<index> per secondary index
// holding (hash, key bytes, record key). Definitions persist in
// shelf_stores/shelf_indexes so a reopen without an upgrade still knows
// the schema; shelf_meta holds the database version.
//
// WAL mode lets read transactions run concurrently with a writer; write
// transactions are serialized on writeMu so the engine never trips over
// SQLITE_BUSY between its own writers. The busy timeout covers stragglers
// from other processes on the same file.
type SQLite struct {
	path string
	log  *zap.SugaredLogger

	// writeMu admits one live write transaction at a time.
	writeMu sync.Mutex

	mu   sync.Mutex
	db   *sql.DB
	defs map[string]types.StoreDef
	open bool
}

// NewSQLite returns an engine for the database file <dir>/<name>.db.
func NewSQLite(dir, name string, logger *zap.SugaredLogger) *SQLite {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLite{
		path: filepath.Join(dir, name+".db"),
		log:  logger,
		defs: make(map[string]types.StoreDef),
	}
}

// Open opens the database file, running the upgrade callback when the
// requested version is newer than the persisted one.
func (e *SQLite) Open(ctx context.Context, version int, upgrade func(Creator) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open {
		return types.NewInvariant("engine already open")
	}
	if version < 1 {
		return types.New(types.ErrCategoryEngine, types.CodeVersionError, "version must be a positive integer")
	}

	db, err := sql.Open("sqlite3", e.path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to open database", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := e.initMeta(ctx, db); err != nil {
		db.Close()
		return err
	}

	current, err := e.readVersion(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	if version < current {
		db.Close()
		return types.New(types.ErrCategoryEngine, types.CodeVersionError,
			fmt.Sprintf("requested version %d is older than existing version %d", version, current))
	}

	e.db = db
	if version > current {
		if err := e.runUpgrade(ctx, version, upgrade); err != nil {
			e.db = nil
			db.Close()
			return err
		}
	}

	if err := e.loadDefinitions(ctx); err != nil {
		e.db = nil
		db.Close()
		return err
	}

	e.open = true
	e.log.Debugw("engine opened", "path", e.path, "version", version, "stores", len(e.defs))
	return nil
}

func (e *SQLite) initMeta(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS shelf_meta (
    k TEXT PRIMARY KEY,
    v INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS shelf_stores (
    name     TEXT PRIMARY KEY,
    key_path TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS shelf_indexes (
    store      TEXT NOT NULL,
    name       TEXT NOT NULL,
    fields     TEXT NOT NULL,
    is_unique  INTEGER NOT NULL,
    PRIMARY KEY (store, name)
);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to initialize metadata", err)
	}
	return nil
}

func (e *SQLite) readVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT v FROM shelf_meta WHERE k = 'version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to read version", err)
	}
	return v, nil
}

func (e *SQLite) runUpgrade(ctx context.Context, version int, upgrade func(Creator) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to begin upgrade", err)
	}
	defer tx.Rollback()

	if upgrade != nil {
		if err := upgrade(&creator{ctx: ctx, tx: tx, log: e.log}); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO shelf_meta (k, v) VALUES ('version', ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		version); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to record version", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to commit upgrade", err)
	}
	return nil
}

func (e *SQLite) loadDefinitions(ctx context.Context) error {
	defs := make(map[string]types.StoreDef)

	rows, err := e.db.QueryContext(ctx, `SELECT name, key_path FROM shelf_stores`)
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to load store definitions", err)
	}
	for rows.Next() {
		var def types.StoreDef
		if err := rows.Scan(&def.Name, &def.KeyPath); err != nil {
			rows.Close()
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to scan store definition", err)
		}
		defs[def.Name] = def
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to load store definitions", err)
	}
	rows.Close()

	rows, err = e.db.QueryContext(ctx, `SELECT store, name, fields, is_unique FROM shelf_indexes ORDER BY rowid`)
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to load index definitions", err)
	}
	defer rows.Close()
	for rows.Next() {
		var store, name, fields string
		var unique bool
		if err := rows.Scan(&store, &name, &fields, &unique); err != nil {
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to scan index definition", err)
		}
		def, ok := defs[store]
		if !ok {
			continue
		}
		def.Indexes = append(def.Indexes, types.IndexDef{
			Name:   name,
			Fields: strings.Split(fields, types.CompositeJoin),
			Unique: unique,
		})
		defs[store] = def
	}
	if err := rows.Err(); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to load index definitions", err)
	}

	e.defs = defs
	return nil
}

// Ready reports whether a connection is open.
func (e *SQLite) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// HasStore reports whether a collection exists.
func (e *SQLite) HasStore(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.defs[name]
	return ok
}

// Definition returns a collection's definition.
func (e *SQLite) Definition(name string) (types.StoreDef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.defs[name]
	return def, ok
}

// Stores returns all collection names, sorted.
func (e *SQLite) Stores() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.defs))
	for name := range e.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Begin starts a transaction over the declared collection set.
func (e *SQLite) Begin(ctx context.Context, stores []string, mode Mode) (Txn, error) {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil, types.NewNotOpen("engine is not open")
	}
	allowed := make(map[string]types.StoreDef, len(stores))
	for _, name := range stores {
		def, ok := e.defs[name]
		if !ok {
			e.mu.Unlock()
			return nil, types.NewNotFound(types.ErrCategoryEngine, fmt.Sprintf("collection %q does not exist", name))
		}
		allowed[name] = def
	}
	db := e.db
	e.mu.Unlock()

	var release func()
	if mode == ReadWrite {
		e.writeMu.Lock()
		release = e.writeMu.Unlock
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to begin transaction", err)
	}
	return &sqliteTxn{tx: tx, allowed: allowed, mode: mode, release: release}, nil
}

// Close closes the connection. Idempotent.
func (e *SQLite) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil
	}
	e.open = false
	err := e.db.Close()
	e.db = nil
	e.defs = make(map[string]types.StoreDef)
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to close database", err)
	}
	return nil
}

// Destroy closes the connection if open, then removes the database file
// and its WAL sidecars.
func (e *SQLite) Destroy() error {
	if err := e.Close(); err != nil {
		return err
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(e.path + suffix); err != nil && !os.IsNotExist(err) {
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "failed to destroy database", err)
		}
	}
	e.log.Debugw("engine destroyed", "path", e.path)
	return nil
}

// creator creates collections inside the upgrade transaction.
type creator struct {
	ctx context.Context
	tx  *sql.Tx
	log *zap.SugaredLogger
}

// CreateStore creates the record table, index tables, and definition rows
// for one collection. A failure aborts only this collection's setup.
func (c *creator) CreateStore(def types.StoreDef) error {
	if def.Name == "" || def.KeyPath == "" {
		return types.NewInvalidSchema("store definition needs a name and a key path")
	}

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (rkey TEXT PRIMARY KEY, rec BLOB NOT NULL)`, recordTable(def.Name))
	if _, err := c.tx.ExecContext(c.ctx, ddl); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
			fmt.Sprintf("failed to create collection %q", def.Name), err)
	}
	if _, err := c.tx.ExecContext(c.ctx,
		`INSERT OR REPLACE INTO shelf_stores (name, key_path) VALUES (?, ?)`,
		def.Name, def.KeyPath); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
			fmt.Sprintf("failed to register collection %q", def.Name), err)
	}

	for _, ix := range def.Indexes {
		if err := c.createIndex(def.Name, ix); err != nil {
			return err
		}
	}
	c.log.Debugw("collection created", "name", def.Name, "key_path", def.KeyPath, "indexes", len(def.Indexes))
	return nil
}

func (c *creator) createIndex(store string, ix types.IndexDef) error {
	table := indexTable(store, ix.Name)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (h INTEGER NOT NULL, k BLOB NOT NULL, rkey TEXT NOT NULL PRIMARY KEY)`, table)
	if _, err := c.tx.ExecContext(c.ctx, ddl); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
			fmt.Sprintf("failed to create index %q on %q", ix.Name, store), err)
	}
	seek := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (h)`, quoteIdent("ixh_"+store+"_"+ix.Name), table)
	if _, err := c.tx.ExecContext(c.ctx, seek); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
			fmt.Sprintf("failed to create seek index for %q on %q", ix.Name, store), err)
	}
	if ix.Unique {
		uq := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (k)`, quoteIdent("ixu_"+store+"_"+ix.Name), table)
		if _, err := c.tx.ExecContext(c.ctx, uq); err != nil {
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
				fmt.Sprintf("failed to create unique index for %q on %q", ix.Name, store), err)
		}
	}
	if _, err := c.tx.ExecContext(c.ctx,
		`INSERT OR REPLACE INTO shelf_indexes (store, name, fields, is_unique) VALUES (?, ?, ?, ?)`,
		store, ix.Name, strings.Join(ix.Fields, types.CompositeJoin), ix.Unique); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure,
			fmt.Sprintf("failed to register index %q on %q", ix.Name, store), err)
	}
	return nil
}

func recordTable(store string) string {
	return quoteIdent("rs_" + store)
}

func indexTable(store, index string) string {
	return quoteIdent("ix_" + store + "_" + index)
}

// quoteIdent quotes an identifier. Names reach this point already
// validated by the schema compiler; the quoting is belt for composite
// names containing '+'.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, ``) + `"`
}

// isConstraintViolation reports whether err is a SQLite constraint error.
func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
