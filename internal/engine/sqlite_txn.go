package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfdb/shelf/pkg/types"
)

// sqliteTxn implements Txn over a sql.Tx pinned to the single write
// connection. Access outside the declared collection set fails with a
// NOT_FOUND engine error, mirroring the underlying engine rule.
type sqliteTxn struct {
	tx      *sql.Tx
	allowed map[string]types.StoreDef
	mode    Mode
	release func() // frees the engine write slot; nil for read transactions
	done    bool
}

func (t *sqliteTxn) finish() {
	if t.release != nil {
		t.release()
		t.release = nil
	}
}

func (t *sqliteTxn) storeDef(store string) (types.StoreDef, error) {
	def, ok := t.allowed[store]
	if !ok {
		return types.StoreDef{}, types.NewNotFound(types.ErrCategoryEngine,
			fmt.Sprintf("collection %q is not part of this transaction scope", store))
	}
	return def, nil
}

func (t *sqliteTxn) writable() error {
	if t.mode != ReadWrite {
		return types.NewInvariant("write attempted on a read-only transaction")
	}
	return nil
}

func (t *sqliteTxn) Get(ctx context.Context, store, key string) (types.Record, error) {
	def, err := t.storeDef(store)
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = t.tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT rec FROM %s WHERE rkey = ?`, recordTable(def.Name)), key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "get failed", err)
	}
	return decodeRecord(blob)
}

func (t *sqliteTxn) Put(ctx context.Context, store string, rec types.Record) (string, error) {
	def, err := t.storeDef(store)
	if err != nil {
		return "", err
	}
	if err := t.writable(); err != nil {
		return "", err
	}
	key, ok := rec.Key(def.KeyPath)
	if !ok {
		return "", types.NewInvariant(
			fmt.Sprintf("record for %q is missing a string value at key path %q", store, def.KeyPath))
	}

	blob, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (rkey, rec) VALUES (?, ?) ON CONFLICT(rkey) DO UPDATE SET rec = excluded.rec`,
			recordTable(def.Name)),
		key, blob); err != nil {
		return "", types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "put failed", err)
	}

	for _, ix := range def.Indexes {
		if err := t.refreshIndexEntry(ctx, def.Name, ix, key, rec); err != nil {
			return "", err
		}
	}
	return key, nil
}

// refreshIndexEntry replaces a record's entry in one index. A record
// missing any indexed field (or holding nil there) contributes no entry;
// boolean values are rejected as index keys.
func (t *sqliteTxn) refreshIndexEntry(ctx context.Context, store string, ix types.IndexDef, key string, rec types.Record) error {
	table := indexTable(store, ix.Name)
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE rkey = ?`, table), key); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "index maintenance failed", err)
	}

	values := make([]any, 0, len(ix.Fields))
	for _, f := range ix.Fields {
		v, present := rec[f]
		if !present || v == nil {
			return nil
		}
		if _, isBool := v.(bool); isBool {
			return types.New(types.ErrCategoryEngine, types.CodeInvariant,
				fmt.Sprintf("boolean field %q cannot be indexed", f))
		}
		values = append(values, v)
	}

	k, err := encodeIndexKey(values)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (h, k, rkey) VALUES (?, ?, ?)`, table),
		seekHash(k), k, key); err != nil {
		if isConstraintViolation(err) {
			return types.Wrap(types.ErrCategoryEngine, types.CodeConstraint,
				fmt.Sprintf("unique index %q on %q violated", ix.Name, store), err)
		}
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "index maintenance failed", err)
	}
	return nil
}

func (t *sqliteTxn) Delete(ctx context.Context, store, key string) error {
	def, err := t.storeDef(store)
	if err != nil {
		return err
	}
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE rkey = ?`, recordTable(def.Name)), key); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "delete failed", err)
	}
	for _, ix := range def.Indexes {
		if _, err := t.tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rkey = ?`, indexTable(def.Name, ix.Name)), key); err != nil {
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "index cleanup failed", err)
		}
	}
	return nil
}

func (t *sqliteTxn) Clear(ctx context.Context, store string) error {
	def, err := t.storeDef(store)
	if err != nil {
		return err
	}
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s`, recordTable(def.Name))); err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "clear failed", err)
	}
	for _, ix := range def.Indexes {
		if _, err := t.tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s`, indexTable(def.Name, ix.Name))); err != nil {
			return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "index cleanup failed", err)
		}
	}
	return nil
}

func (t *sqliteTxn) OpenCursor(ctx context.Context, store, index string, seed []any) (Cursor, error) {
	def, err := t.storeDef(store)
	if err != nil {
		return nil, err
	}

	if index == "" || index == def.KeyPath {
		return t.openPrimaryCursor(ctx, def, seed)
	}

	if _, ok := def.Index(index); !ok {
		return nil, types.NewIndexNotFound(store, index)
	}
	table := indexTable(def.Name, index)
	if seed == nil {
		rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(
			`SELECT r.rec FROM %s i JOIN %s r ON r.rkey = i.rkey ORDER BY i.k, i.rkey`,
			table, recordTable(def.Name)))
		if err != nil {
			return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor open failed", err)
		}
		return &rowCursor{rows: rows}, nil
	}

	k, err := encodeIndexKey(seed)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT r.rec FROM %s i JOIN %s r ON r.rkey = i.rkey WHERE i.h = ? AND i.k = ? ORDER BY i.rkey`,
		table, recordTable(def.Name)),
		seekHash(k), k)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor open failed", err)
	}
	return &rowCursor{rows: rows}, nil
}

func (t *sqliteTxn) openPrimaryCursor(ctx context.Context, def types.StoreDef, seed []any) (Cursor, error) {
	table := recordTable(def.Name)
	if seed == nil {
		rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`SELECT rec FROM %s ORDER BY rkey`, table))
		if err != nil {
			return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor open failed", err)
		}
		return &rowCursor{rows: rows}, nil
	}

	// Primary keys are strings; a non-string seed cannot match anything.
	if len(seed) != 1 {
		return nil, types.NewInvariant("primary cursor seed must be a single value")
	}
	key, ok := seed[0].(string)
	if !ok {
		return &rowCursor{exhausted: true}, nil
	}
	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`SELECT rec FROM %s WHERE rkey = ?`, table), key)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor open failed", err)
	}
	return &rowCursor{rows: rows}, nil
}

func (t *sqliteTxn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Commit()
	t.finish()
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "commit failed", err)
	}
	return nil
}

func (t *sqliteTxn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	t.finish()
	if err != nil {
		return types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "rollback failed", err)
	}
	return nil
}

// rowCursor adapts sql.Rows to the Cursor contract.
type rowCursor struct {
	rows      *sql.Rows
	exhausted bool
}

func (c *rowCursor) Next() (types.Record, bool, error) {
	if c.exhausted {
		return nil, false, nil
	}
	if !c.rows.Next() {
		c.exhausted = true
		if err := c.rows.Err(); err != nil {
			return nil, false, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor scan failed", err)
		}
		return nil, false, nil
	}
	var blob []byte
	if err := c.rows.Scan(&blob); err != nil {
		return nil, false, types.Wrap(types.ErrCategoryEngine, types.CodeEngineFailure, "cursor scan failed", err)
	}
	rec, err := decodeRecord(blob)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (c *rowCursor) Close() error {
	if c.rows == nil {
		return nil
	}
	return c.rows.Close()
}
