// Package engine defines the contract of the underlying transactional,
// indexed object-storage engine and provides a SQLite-backed binding.
//
// Everything above this package delegates storage, indexing, durability,
// and transaction mechanics here; the layer on top never bypasses the
// contract. Transactions are valid only for the collection set declared at
// Begin, and every data call against an undeclared collection fails with a
// NOT_FOUND engine error.
package engine

import (
	"context"

	"github.com/shelfdb/shelf/pkg/types"
)

// Mode selects the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// String returns the mode name for logs.
func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Engine is the storage-engine boundary: open/create/upgrade/destroy the
// database, and hand out transactions scoped to declared collection sets.
type Engine interface {
	// Open opens the database, creating or upgrading it when the requested
	// version is newer than what exists. The upgrade callback runs exactly
	// once per version bump and is the only place stores may be created.
	// Requesting a version older than the persisted one fails.
	Open(ctx context.Context, version int, upgrade func(Creator) error) error

	// Ready reports whether a connection is open.
	Ready() bool

	// HasStore reports whether a collection exists.
	HasStore(name string) bool

	// Definition returns a collection's definition.
	Definition(name string) (types.StoreDef, bool)

	// Stores returns the names of all collections, sorted.
	Stores() []string

	// Begin starts a transaction valid only for the given collections.
	Begin(ctx context.Context, stores []string, mode Mode) (Txn, error)

	// Close closes the connection. Idempotent.
	Close() error

	// Destroy closes the connection if open, then removes all persisted
	// data for this database. Irreversible.
	Destroy() error
}

// Creator creates collections during an upgrade. Each CreateStore call is
// an independent unit of work: a failed collection aborts only its own
// setup, and siblings may still be created.
type Creator interface {
	CreateStore(def types.StoreDef) error
}

// Txn is a transaction over a declared collection set. All reads observe a
// consistent view; either every write commits or the transaction aborts as
// a whole.
type Txn interface {
	// Get returns the record stored under key, or nil when absent.
	Get(ctx context.Context, store, key string) (types.Record, error)

	// Put upserts a record by its primary key and refreshes its index
	// entries. Returns the record's key.
	Put(ctx context.Context, store string, rec types.Record) (string, error)

	// Delete removes a record and its index entries. Deleting an absent
	// key is a no-op.
	Delete(ctx context.Context, store, key string) error

	// Clear removes every record in the collection.
	Clear(ctx context.Context, store string) error

	// OpenCursor opens a cursor over the collection. An empty index name
	// scans the primary key order; otherwise the named secondary index is
	// scanned. A non-nil seed restricts the scan to entries whose index
	// key exactly matches the seed tuple. The cursor must be drained or
	// closed before issuing further operations on the transaction.
	OpenCursor(ctx context.Context, store, index string, seed []any) (Cursor, error)

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. Safe to call after Commit.
	Rollback() error
}

// Cursor iterates records. Cursors are the engine's only iteration
// primitive; scans run to exhaustion.
type Cursor interface {
	// Next returns the next record. The bool is false once exhausted.
	Next() (types.Record, bool, error)

	// Close releases the cursor.
	Close() error
}
